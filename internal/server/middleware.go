package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// GetRealIP returns the client address, honouring CF-Connecting-IP and
// X-Forwarded-For only when trustProxy is set.
func GetRealIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
			return cf
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// ipLimiters hands out one token bucket per client address.
type ipLimiters struct {
	mu      sync.Mutex
	clients map[string]*ipClient
	limit   rate.Limit
	burst   int
}

type ipClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(count int, window time.Duration) *ipLimiters {
	limit := rate.Inf
	if count > 0 && window > 0 {
		limit = rate.Limit(float64(count) / window.Seconds())
	}
	return &ipLimiters{
		clients: make(map[string]*ipClient),
		limit:   limit,
		burst:   max(1, count),
	}
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	cli, found := l.clients[ip]
	if !found {
		cli = &ipClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cli
	}
	cli.lastSeen = time.Now()
	limiter := cli.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// forget drops clients idle for longer than idle.
func (l *ipLimiters) forget(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > idle {
			delete(l.clients, ip)
		}
	}
}

// RateLimitMiddleware applies a hard rate limit based on the client's IP address.
// It rejects requests with "429 Too Many Requests" if the limit is exceeded.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
	limiters := newIPLimiters(s.hardLimitCount, s.hardLimitWin)

	// Drop old clients every 5 min
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				limiters.forget(10 * time.Minute)
			}
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiters.allow(GetRealIP(r, s.trustProxy)) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs the details of each HTTP request, including method, path, client IP and country, and duration.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		ev := log.Debug()
		if !ev.Enabled() {
			return
		}
		ip := GetRealIP(r, s.trustProxy)
		ev.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", ip).
			Str("country", s.geoip.LookupString(ip)).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// AdminAuthMiddleware protects endpoints by requiring a valid Bearer token in the Authorization header.
func AdminAuthMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" || r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
