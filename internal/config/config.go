// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hytaleone/hyquery/internal/logger"
	"github.com/hytaleone/hyquery/internal/vars"
	"github.com/jessevdk/go-flags"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server   Server        `group:"Server Options" env-namespace:"HYQUERY"`
	Query    Query         `group:"Query Options" namespace:"query" env-namespace:"HYQUERY_QUERY"`
	Status   Status        `group:"Status Options" namespace:"status" env-namespace:"HYQUERY_STATUS"`
	Register Register      `group:"Registration Options" namespace:"register" env-namespace:"HYQUERY_REGISTER"`
	Storage  Storage       `group:"Storage Options" namespace:"db" env-namespace:"HYQUERY_DB"`
	Probe    Probe         `group:"Probe Options" namespace:"probe" env-namespace:"HYQUERY_PROBE"`
	Logger   logger.Config `group:"Logger Options" namespace:"log" env-namespace:"HYQUERY_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds the UDP listener configuration.
type Server struct {
	// betteralign:ignore

	Address     string        `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"UDP listen address shared by queries and game traffic" default:":5520"`
	Backend     string        `short:"b" long:"backend" env:"BACKEND" description:"Game server UDP address that receives all non-query traffic"`
	IdleTimeout time.Duration `long:"session-idle" env:"SESSION_IDLE" description:"Drop relay sessions idle for this long" default:"2m"`
	BufferSize  int           `long:"buffer-size" env:"BUFFER_SIZE" description:"Datagram read buffer size" default:"65535"`
}

// Query holds query protocol options.
type Query struct {
	// betteralign:ignore

	DisableFull bool          `long:"disable-full" env:"DISABLE_FULL" description:"Answer full queries with the basic response"`
	RateLimit   float64       `long:"rate" env:"RATE" description:"Responses per second allowed per source IP (0 disables the limit)" default:"0"`
	RateBurst   int           `long:"burst" env:"BURST" description:"Response burst allowed per source IP" default:"5"`
	LimiterTTL  time.Duration `long:"limiter-ttl" env:"LIMITER_TTL" description:"Forget idle source IPs after this long" default:"10m"`
}

// Status holds the static server description and the status file location.
type Status struct {
	// betteralign:ignore

	Name            string        `short:"n" long:"name" env:"NAME" description:"Server name" default:"Hytale Server"`
	MOTD            string        `long:"motd" env:"MOTD" description:"Message of the day"`
	MaxPlayers      int64         `long:"max-players" env:"MAX_PLAYERS" description:"Player capacity" default:"100"`
	Version         string        `long:"server-version" env:"SERVER_VERSION" description:"Server version string" default:"unknown"`
	ProtocolVersion uint32        `long:"protocol-version" env:"PROTOCOL_VERSION" description:"Game protocol version"`
	ProtocolHash    string        `long:"protocol-hash" env:"PROTOCOL_HASH" description:"Game protocol hash"`
	File            string        `short:"s" long:"file" env:"FILE" description:"JSON status file written by the game server"`
	Interval        time.Duration `long:"interval" env:"INTERVAL" description:"Status file poll interval" default:"2s"`
	FakePlayers     int           `long:"gen-fake-players" hidden:"true"`
}

// Register holds directory service registration options.
type Register struct {
	// betteralign:ignore

	OnStartup bool          `short:"r" long:"on-startup" env:"ON_STARTUP" description:"Register with the server list on startup"`
	ServerID  string        `long:"server-id" env:"SERVER_ID" description:"Override the stored server id (do not change once registered)"`
	Endpoint  string        `long:"endpoint" env:"ENDPOINT" description:"Registration endpoint" default:"https://hytale.one/api/plugin/query/register"`
	Timeout   time.Duration `long:"timeout" env:"TIMEOUT" description:"Registration request timeout" default:"10s"`
	Now       bool          `long:"now" description:"Register once in the foreground and exit"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path         string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"hyquery.db"`
	ShowIdentity bool          `long:"show-identity" description:"Print the server id and recent registrations, then exit"`
	PruneHistory time.Duration `long:"prune-history" description:"Delete registration records older than this duration, then exit"`
}

// Probe holds options of the query client mode.
type Probe struct {
	// betteralign:ignore

	Address string        `long:"address" env:"ADDRESS" description:"Query this host:port, print the response and exit"`
	Full    bool          `long:"full" env:"FULL" description:"Send a full query instead of a basic one"`
	Timeout time.Duration `long:"timeout" env:"TIMEOUT" description:"Probe timeout" default:"3s"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	return &cfg
}

// Validate reports option combinations that cannot work.
func (c *Config) Validate() error {
	if c.Server.BufferSize < 512 || c.Server.BufferSize > 65535 {
		return fmt.Errorf("buffer size must be between 512 and 65535, got %d", c.Server.BufferSize)
	}
	if c.Server.IdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}
	if c.Query.LimiterTTL <= 0 {
		return fmt.Errorf("limiter ttl must be positive")
	}
	if c.Query.RateLimit < 0 {
		return fmt.Errorf("query rate must not be negative")
	}
	if c.Query.RateLimit > 0 && c.Query.RateBurst < 1 {
		return fmt.Errorf("query burst must be at least 1 when a rate is set")
	}
	if c.Status.Interval <= 0 {
		return fmt.Errorf("status interval must be positive")
	}
	if c.Register.Timeout <= 0 {
		return fmt.Errorf("registration timeout must be positive")
	}
	return nil
}
