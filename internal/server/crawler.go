package server

import (
	"net/netip"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// Enqueue results.
const (
	statusQueued  = "queued"
	statusSkipped = "skipped"
	statusDropped = "dropped"
)

// crawler polls the masters immediately and then every query interval.
func (s *Server) crawler() {
	defer s.crawlWG.Done()

	s.crawlOnce()

	ticker := time.NewTicker(s.query.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.crawlOnce()
		}
	}
}

// crawlOnce collects addresses from all masters and queues a probe for each.
func (s *Server) crawlOnce() {
	start := time.Now()
	jobs := s.collect()

	counts := map[string]int{}
	for _, job := range jobs {
		counts[s.enqueue(job)]++
	}

	log.Info().
		Int("servers", len(jobs)).
		Int(statusQueued, counts[statusQueued]).
		Int(statusSkipped, counts[statusSkipped]).
		Int(statusDropped, counts[statusDropped]).
		Dur("duration", time.Since(start)).
		Msg("Crawl finished")
}

// collect queries every master in order and unions their lists.
// A failing master is logged and skipped.
func (s *Server) collect() []probeJob {
	seen := make(map[uint64]struct{})
	var jobs []probeJob

	for _, master := range s.query.Masters {
		if s.ctx.Err() != nil {
			break
		}

		list, err := s.queryMaster(master, s.query)
		if err != nil && len(list) == 0 {
			log.Warn().Err(err).Str("master", master).Msg("Master query failed")
			continue
		}
		if err != nil {
			log.Debug().Err(err).Str("master", master).Int("servers", len(list)).Msg("Master returned a partial list")
		}

		added := 0
		for _, a := range list {
			addr := netip.AddrPortFrom(a.IP.Unmap(), a.Port)
			key := addrKey(addr)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			jobs = append(jobs, probeJob{Addr: addr, Master: master})
			added++
		}

		log.Debug().
			Str("master", master).
			Int("servers", len(list)).
			Int("new", added).
			Msg("Master list received")
	}

	return jobs
}

// enqueue offers job to the workers unless it was probed within the soft limit.
func (s *Server) enqueue(job probeJob) string {
	key := addrKey(job.Addr)
	if val, ok := s.seenCache.Load(key); ok {
		if lastSeen, ok := val.(time.Time); ok && time.Since(lastSeen) < s.softLimitDur {
			log.Trace().Str("address", job.Addr.String()).Msg("Dropped by soft limit hit")
			return statusSkipped
		}
	}

	select {
	case s.queue <- job:
		s.seenCache.Store(key, time.Now())
		return statusQueued
	default:
		log.Warn().Str("address", job.Addr.String()).Msg("Queue full, probe dropped")
		return statusDropped
	}
}

func addrKey(addr netip.AddrPort) uint64 {
	return xxhash.Sum64String(addr.String())
}
