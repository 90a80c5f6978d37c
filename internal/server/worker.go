package server

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/teestat/internal/models"
)

// worker is a background goroutine that processes jobs from the probe queue.
func (s *Server) worker() {
	defer s.wg.Done()

	for job := range s.queue {
		if s.ctx.Err() != nil {
			continue // drain
		}
		s.processJob(job)
	}
}

// processJob queries one game server, resolves its country, and stores the result.
// Unanswered crawled servers are still recorded so they can be pruned or re-checked later.
func (s *Server) processJob(job probeJob) {
	if err := s.probeLimiter.Wait(s.ctx); err != nil {
		return
	}

	ip := job.Addr.Addr()
	port := int(job.Addr.Port())
	now := time.Now()

	node := models.Server{
		IP:          ip.String(),
		Port:        port,
		Master:      job.Master,
		CountryCode: s.geoip.CountryCode(ip),
		FirstSeen:   now,
		LastSeen:    now,
	}

	info, err := s.queryServer(node.IP, port, s.query)
	if err != nil {
		log.Debug().
			Err(err).
			Str("ip", node.IP).
			Int("port", port).
			Msg("Info query failed")

		if job.Master == "" {
			return
		}
	} else {
		node.ApplyInfo(info)
	}

	if err := s.storage.UpsertServer(node); err != nil {
		log.Error().Err(err).Str("ip", node.IP).Int("port", port).Msg("Failed to save server to DB")
		return
	}

	log.Trace().
		Str("ip", node.IP).
		Int("port", port).
		Bool("online", node.Online()).
		Int("players", len(node.Players)).
		Msg("Server saved")
}
