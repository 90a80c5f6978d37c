// Package maintenance provide tools for clean and update database
package maintenance

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/teestat/internal/config"
	"github.com/woozymasta/teestat/internal/game"
	"github.com/woozymasta/teestat/internal/models"
	"github.com/woozymasta/teestat/internal/storage"
	"github.com/woozymasta/teestat/internal/teeworlds"
)

// workers is the size of the re-check pool.
const workers = 10

type querier func(ip string, port int, options config.Query) (*teeworlds.ServerInfo, error)

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(cfg *config.Config, store *storage.Repository) bool {
	return run(cfg, store, game.QueryServer)
}

func run(cfg *config.Config, store *storage.Repository, query querier) bool {
	if cfg.Storage.PruneEmpty != "" {
		master := parseMaster(cfg.Storage.PruneEmpty)
		log.Info().Str("master_filter", master).Msg("Pruning servers without info...")

		count, err := store.DeleteEmptyServers(master)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune servers")
		} else {
			log.Info().Int64("deleted", count).Msg("Prune finished")
		}

		return true
	}

	// check-inactive wins over check-all when both are set
	var (
		servers  []models.Server
		err      error
		taskName string
	)

	switch {
	case cfg.Storage.CheckInactive != "":
		taskName = "Check Inactive"
		master := parseMaster(cfg.Storage.CheckInactive)
		log.Info().Str("master_filter", master).Msg("Fetching servers without info for check...")
		servers, err = store.GetServersSubset(master, true)
	case cfg.Storage.CheckAll != "":
		taskName = "Check All"
		master := parseMaster(cfg.Storage.CheckAll)
		log.Info().Str("master_filter", master).Msg("Fetching all servers for re-check...")
		servers, err = store.GetServersSubset(master, false)
	default:
		return false
	}

	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		return true
	}

	if len(servers) == 0 {
		log.Info().Msg("No servers found for maintenance")
		return true
	}

	log.Info().Int("count", len(servers)).Msgf("Starting '%s' task with %d workers...", taskName, workers)
	runWorkerPool(servers, store, cfg.Query, query)
	log.Info().Msg("Maintenance task completed")

	return true
}

// parseMaster maps the flag's optional value to a storage filter, empty meaning every master.
func parseMaster(input string) string {
	if input == config.AnyMaster {
		return ""
	}

	return input
}

func runWorkerPool(servers []models.Server, store *storage.Repository, opts config.Query, query querier) {
	jobs := make(chan models.Server, len(servers))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for srv := range jobs {
				processServer(srv, store, opts, query)
			}
		}()
	}

	for _, s := range servers {
		jobs <- s
	}
	close(jobs)

	wg.Wait()
}

func processServer(srv models.Server, store *storage.Repository, opts config.Query, query querier) {
	logCtx := log.With().
		Str("master", srv.Master).
		Str("ip", srv.IP).
		Int("port", srv.Port).
		Logger()

	if srv.Port <= 0 || srv.Port > 65535 {
		logCtx.Debug().Msg("Invalid port, deleting server")
		if err := store.DeleteServer(srv.IP, srv.Port); err != nil {
			logCtx.Error().Err(err).Msg("Failed to delete invalid server")
		}
		return
	}

	info, err := query(srv.IP, srv.Port, opts)
	if err != nil {
		logCtx.Debug().Err(err).Msg("Server unreachable, deleting server")
		if err := store.DeleteServer(srv.IP, srv.Port); err != nil {
			logCtx.Error().Err(err).Msg("Failed to delete unreachable server")
		}
		return
	}

	srv.ApplyInfo(info)
	srv.LastSeen = time.Now()

	if err := store.UpsertServer(srv); err != nil {
		logCtx.Error().Err(err).Msg("Failed to update server")
	} else {
		logCtx.Trace().Msg("Server updated successfully")
	}
}
