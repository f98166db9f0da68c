package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/teamauction/go/internal/auction"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StorePGX      = "pgx"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Store struct {
		Driver  string `yaml:"driver"`
		Seed    string `yaml:"seed"`
		Migrate bool   `yaml:"migrate"`
	} `yaml:"store"`

	NATS struct {
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Auction struct {
		CountdownWindow   time.Duration `yaml:"countdown_window"`
		BidResetWindow    time.Duration `yaml:"bid_reset_window"`
		TickPeriod        time.Duration `yaml:"tick_period"`
		SchedulerInterval time.Duration `yaml:"scheduler_interval"`
		StartTolerance    time.Duration `yaml:"start_tolerance"`
		OperationTimeout  time.Duration `yaml:"operation_timeout"`
		RetryDelay        time.Duration `yaml:"retry_delay"`
	} `yaml:"auction"`

	WebSocket struct {
		MaxMessageSize    int64   `yaml:"max_message_size"`
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		MessageBurst      int     `yaml:"message_burst"`
	} `yaml:"websocket"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var c Config
	c.Server.Port = "8080"
	c.Server.AllowedOrigins = []string{"*"}
	c.Store.Driver = StoreMemory
	c.NATS.StreamName = "AUCTION_EVENTS"
	c.NATS.SubjectPrefix = "auction"

	d := auction.DefaultConfig()
	c.Auction.CountdownWindow = d.CountdownWindow
	c.Auction.BidResetWindow = d.BidResetWindow
	c.Auction.TickPeriod = d.TickPeriod
	c.Auction.SchedulerInterval = d.SchedulerInterval
	c.Auction.StartTolerance = d.StartTolerance
	c.Auction.OperationTimeout = d.OperationTimeout
	c.Auction.RetryDelay = d.RetryDelay

	c.WebSocket.MaxMessageSize = 4096
	c.WebSocket.MessagesPerSecond = 10
	c.WebSocket.MessageBurst = 20

	c.Log.Level = "info"
	c.Log.Format = "console"
	return &c
}

// Load builds the configuration from defaults, the YAML file at path (if
// any) and then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.Seed = getEnv("STORE_SEED", c.Store.Seed)
	c.Store.Migrate = getEnvAsBool("STORE_MIGRATE", c.Store.Migrate)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.StreamName = getEnv("NATS_STREAM", c.NATS.StreamName)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Auction.CountdownWindow = getEnvAsDuration("COUNTDOWN_WINDOW", c.Auction.CountdownWindow)
	c.Auction.BidResetWindow = getEnvAsDuration("BID_RESET_WINDOW", c.Auction.BidResetWindow)
	c.Auction.TickPeriod = getEnvAsDuration("TICK_PERIOD", c.Auction.TickPeriod)
	c.Auction.SchedulerInterval = getEnvAsDuration("SCHEDULER_INTERVAL", c.Auction.SchedulerInterval)
	c.Auction.StartTolerance = getEnvAsDuration("START_TOLERANCE", c.Auction.StartTolerance)
	c.Auction.OperationTimeout = getEnvAsDuration("OPERATION_TIMEOUT", c.Auction.OperationTimeout)
	c.Auction.RetryDelay = getEnvAsDuration("RETRY_DELAY", c.Auction.RetryDelay)

	c.WebSocket.MessagesPerSecond = getEnvAsFloat("WS_MESSAGES_PER_SECOND", c.WebSocket.MessagesPerSecond)
	c.WebSocket.MessageBurst = getEnvAsInt("WS_MESSAGE_BURST", c.WebSocket.MessageBurst)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres, StorePGX:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Auction.TickPeriod <= 0 {
		return fmt.Errorf("tick_period must be positive")
	}
	if c.Auction.CountdownWindow < c.Auction.TickPeriod {
		return fmt.Errorf("countdown_window must be at least one tick_period")
	}
	if c.WebSocket.MessagesPerSecond <= 0 || c.WebSocket.MessageBurst <= 0 {
		return fmt.Errorf("websocket rate limits must be positive")
	}
	return nil
}

// AuctionConfig returns the coordinator timing.
func (c *Config) AuctionConfig() auction.Config {
	cfg := auction.DefaultConfig()
	cfg.CountdownWindow = c.Auction.CountdownWindow
	cfg.BidResetWindow = c.Auction.BidResetWindow
	cfg.TickPeriod = c.Auction.TickPeriod
	cfg.SchedulerInterval = c.Auction.SchedulerInterval
	cfg.StartTolerance = c.Auction.StartTolerance
	cfg.OperationTimeout = c.Auction.OperationTimeout
	cfg.RetryDelay = c.Auction.RetryDelay
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
