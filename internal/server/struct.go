package server

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/woozymasta/teestat/internal/config"
	"github.com/woozymasta/teestat/internal/geoip"
	"github.com/woozymasta/teestat/internal/storage"
	"golang.org/x/time/rate"
)

// Server holds the dependencies, configuration, and runtime state required
// to serve the HTTP API and to crawl master and game servers in the background.
type Server struct {
	// storage provides access to the persistent server and roster data.
	storage *storage.Repository

	// geoip resolves server addresses to country codes. It can be nil.
	geoip *geoip.Provider

	// query selects how game and master servers are contacted.
	query config.Query

	// queryServer and queryMaster perform the UDP exchanges. Tests replace them.
	queryServer serverQuerier
	queryMaster masterQuerier

	// queue passes probe jobs from the crawler and the API to the workers.
	queue chan probeJob

	// ctx is cancelled by StopWorkers to stop the crawler, the cache cleanup,
	// and probes waiting on probeLimiter.
	ctx    context.Context
	cancel context.CancelFunc

	// probeLimiter caps outbound info queries across all workers.
	probeLimiter *rate.Limiter

	// seenCache maps the xxhash of "ip:port" to the last probe time
	// for the soft re-probe limit.
	seenCache sync.Map

	// authToken is the secret token required for the administrative API.
	authToken string

	// wg waits for the probe workers, crawlWG for the crawler.
	wg      sync.WaitGroup
	crawlWG sync.WaitGroup

	// maxBody caps request bodies.
	maxBody int64

	// hardLimitCount and hardLimitWin define the per-IP API request budget.
	hardLimitCount int
	hardLimitWin   time.Duration

	// softLimitDur skips a server probed within this duration.
	softLimitDur time.Duration

	// trustProxy enables CF-Connecting-IP and X-Forwarded-For.
	trustProxy bool

	// crawl enables the periodic master crawl.
	crawl bool
}

// probeJob is one game server to query.
type probeJob struct {
	// Addr is the game server endpoint.
	Addr netip.AddrPort

	// Master is the master the address came from, empty for manual probes.
	Master string
}
