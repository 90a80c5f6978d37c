// Package server implements the crawler, the probe workers, and the HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/woozymasta/teestat/internal/config"
	"github.com/woozymasta/teestat/internal/game"
	"github.com/woozymasta/teestat/internal/geoip"
	"github.com/woozymasta/teestat/internal/storage"
	"github.com/woozymasta/teestat/internal/teeworlds"
	"golang.org/x/time/rate"
)

type (
	serverQuerier func(ip string, port int, options config.Query) (*teeworlds.ServerInfo, error)
	masterQuerier func(address string, options config.Query) ([]teeworlds.ServerAddress, error)
)

// queueSize bounds pending probes. DDNet masters list roughly 1500 servers.
const queueSize = 4096

// New creates a new Server instance with the provided storage, GeoIP provider, and configuration.
func New(store *storage.Repository, geo *geoip.Provider, cfg *config.Config) *Server {
	limit := rate.Inf
	if cfg.Query.Rate > 0 {
		limit = rate.Limit(cfg.Query.Rate)
	}
	burst := max(1, int(cfg.Query.Rate))
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		storage:        store,
		geoip:          geo,
		query:          cfg.Query,
		queryServer:    game.QueryServer,
		queryMaster:    game.QueryMaster,
		probeLimiter:   rate.NewLimiter(limit, burst),
		authToken:      cfg.Server.AuthToken,
		maxBody:        cfg.Server.MaxBodySize,
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		softLimitDur:   cfg.RateLimit.SoftLimitDur,
		crawl:          !cfg.Server.NoCrawl,

		queue:  make(chan probeJob, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// StartWorkers launches the probe workers, the master crawler, and the cache cleanup routine.
func (s *Server) StartWorkers() {
	for i := 0; i < s.query.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	if s.crawl {
		s.crawlWG.Add(1)
		go s.crawler()
	}

	go s.gcSoftLimitCache()
}

// StopWorkers stops the crawler, then closes the job queue and waits for in-flight probes.
// The HTTP server must be shut down first.
func (s *Server) StopWorkers() {
	s.cancel()
	s.crawlWG.Wait()
	close(s.queue)
	s.wg.Wait()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	admin := func(h http.HandlerFunc) http.Handler {
		return AdminAuthMiddleware(s.authToken, h)
	}

	mux.Handle("POST /api/probe", s.RateLimitMiddleware(http.HandlerFunc(s.handleProbe)))
	mux.Handle("GET /api/servers", admin(s.handleServers))
	mux.Handle("GET /api/server", admin(s.handleGetServer))
	mux.Handle("DELETE /api/server", admin(s.handleDeleteServer))
	mux.Handle("GET /api/info", admin(s.handleServerQuery))
	mux.Handle("GET /api/master", admin(s.handleMasterQuery))
	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))

	return s.LoggingMiddleware(mux)
}

// gcSoftLimitCache periodically cleans up expired entries from the soft rate-limit cache.
func (s *Server) gcSoftLimitCache() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			s.seenCache.Range(func(key, value any) bool {
				if t, ok := value.(time.Time); !ok || now.Sub(t) > s.softLimitDur {
					s.seenCache.Delete(key)
				}
				return true
			})
		}
	}
}
