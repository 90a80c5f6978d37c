// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/teestat/internal/logger"
	"github.com/woozymasta/teestat/internal/vars"
)

// AnyMaster marks maintenance tasks that apply to servers from every master.
const AnyMaster = "AnyMaster"

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"TEESTAT"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"TEESTAT_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"TEESTAT_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"TEESTAT_RATE_LIMIT"`
	Query     Query         `group:"Query Options" namespace:"query" env-namespace:"TEESTAT_QUERY"`
	Inspect   Inspect       `group:"Inspect Options"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"TEESTAT_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"512"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
	NoCrawl     bool   `long:"no-crawl" env:"NO_CRAWL" description:"Serve the API without polling master servers"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path          string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"teestat.db"`
	PruneEmpty    string `long:"prune-empty" description:"Delete servers that never answered. Optional arg: master address." optional:"true" optional-value:"AnyMaster"`
	CheckInactive string `long:"check-inactive" description:"Re-query servers that never answered. Update if UP, delete if DOWN. Optional arg: master address." optional:"true" optional-value:"AnyMaster"`
	CheckAll      string `long:"check-all" description:"Re-query ALL servers. Update if UP, delete if DOWN. Optional arg: master address." optional:"true" optional-value:"AnyMaster"`
	GenerateCount int    `long:"gen-fake-data" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"teestat.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// Query holds Teeworlds master and info query configuration.
type Query struct {
	// betteralign:ignore

	Masters    []string      `short:"m" long:"master" env:"MASTERS" env-delim:"," description:"Master server address (host:port), repeatable" default:"master1.ddnet.org:8300" default:"master2.ddnet.org:8300" default:"master3.ddnet.org:8300" default:"master4.ddnet.org:8300"`
	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Per datagram read and write timeout" default:"400ms"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Receive buffer size" default:"1400"`
	Workers    int           `long:"workers" env:"WORKERS" description:"Concurrent info queries" default:"16"`
	Interval   time.Duration `long:"interval" env:"INTERVAL" description:"Master crawl interval" default:"5m"`
	Rate       float64       `long:"rate" env:"RATE" description:"Outbound info queries per second (0 = unlimited)" default:"50"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"8"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
	SoftLimitDur   time.Duration `long:"soft" env:"SOFT" description:"Soft limit: skip re-probing a server seen within duration" default:"2m"`
}

// Inspect holds one-shot query options. Either one makes the program print and exit.
type Inspect struct {
	Info string `long:"info" value-name:"HOST:PORT" description:"Query one game server, print its info and exit"`
	List string `long:"list" value-name:"HOST:PORT" description:"Query one master server, print its list and exit"`
}

// Enabled reports whether a one-shot query was requested.
func (i Inspect) Enabled() bool {
	return i.Info != "" || i.List != ""
}

// Validate checks values that flag parsing can not.
func (c *Config) Validate() error {
	if c.Inspect.Enabled() {
		if c.Inspect.Info != "" && c.Inspect.List != "" {
			return errors.New("flags `--info' and `--list' are mutually exclusive")
		}
		return validateQuery(c.Query, false)
	}

	if c.Server.AuthToken == "" && c.Storage.GenerateCount == 0 && !c.maintenance() {
		return errors.New("required flag `-t, --auth-token' or environment variable `TEESTAT_AUTH_TOKEN` was not specified")
	}

	return validateQuery(c.Query, !c.Server.NoCrawl)
}

func (c *Config) maintenance() bool {
	return c.Storage.PruneEmpty != "" || c.Storage.CheckInactive != "" || c.Storage.CheckAll != ""
}

func validateQuery(q Query, needMasters bool) error {
	if q.Timeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %s", q.Timeout)
	}
	if q.BufferSize < 64 {
		return fmt.Errorf("query buffer size %d is too small", q.BufferSize)
	}
	if q.Workers < 1 {
		return fmt.Errorf("query workers must be at least 1, got %d", q.Workers)
	}
	if q.Rate < 0 {
		return fmt.Errorf("query rate must not be negative, got %g", q.Rate)
	}
	if !needMasters {
		return nil
	}
	if len(q.Masters) == 0 {
		return errors.New("at least one master server is required")
	}
	if q.Interval <= 0 {
		return fmt.Errorf("query interval must be positive, got %s", q.Interval)
	}
	for _, m := range q.Masters {
		if _, _, err := net.SplitHostPort(m); err != nil {
			return fmt.Errorf("invalid master address %q: %w", m, err)
		}
	}
	return nil
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}

// ParseArgs parses args and the environment without exiting.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Version {
		return &cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
