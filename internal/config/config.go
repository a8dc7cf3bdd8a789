// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML table of network parameters.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Config is the full process configuration.
type Config struct {
	Lottery  LotteryConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig

	// Networks is populated by Load from the built-in table and the optional
	// networks file.
	Networks map[string]Network `env:"-"`
}

// LotteryConfig selects the network and overrides its parameters.
type LotteryConfig struct {
	Network         string        `env:"LOTTERY_NETWORK,default=hardhat"`
	NetworksFile    string        `env:"LOTTERY_NETWORKS_FILE"`
	EntryFee        uint64        `env:"LOTTERY_ENTRY_FEE"`
	Interval        time.Duration `env:"LOTTERY_INTERVAL"`
	KeeperPoll      time.Duration `env:"LOTTERY_KEEPER_POLL,default=5s"`
	FulfilmentDelay time.Duration `env:"LOTTERY_VRF_DELAY,default=2s"`
	CoordinatorURL  string        `env:"LOTTERY_COORDINATOR_URL"`
	CoordinatorKey  string        `env:"LOTTERY_COORDINATOR_KEY"`
	CallbackURL     string        `env:"LOTTERY_CALLBACK_URL"`
	CallbackToken   string        `env:"ORACLE_CALLBACK_TOKEN"`
	Matcher         string        `env:"LOTTERY_MATCHER,default=positional"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host        string  `env:"SERVER_HOST,default=0.0.0.0"`
	Port        int     `env:"SERVER_PORT,default=8080"`
	EntryRate   float64 `env:"SERVER_ENTRY_RATE,default=5"`
	EntryBurst  int     `env:"SERVER_ENTRY_BURST,default=10"`
	CORSOrigins string  `env:"SERVER_CORS_ORIGINS,default=*"`
}

// DatabaseConfig selects the postgres store when DSN is set.
type DatabaseConfig struct {
	DSN            string `env:"DATABASE_URL"`
	MaxOpenConns   int    `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MigrateOnStart bool   `env:"DATABASE_MIGRATE,default=true"`
}

// RedisConfig enables the notification publisher when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
	Channel  string `env:"REDIS_CHANNEL,default=lottery:events"`
}

// LoggingConfig mirrors logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=text"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX,default=lotteryd"`
}

// Logger converts to the logger package's configuration.
func (l LoggingConfig) Logger() logger.LoggingConfig {
	return logger.LoggingConfig{Level: l.Level, Format: l.Format, Output: l.Output, FilePrefix: l.FilePrefix}
}

// Address is the HTTP listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads envFiles (missing files are ignored), decodes the environment
// and merges the networks file over the built-in networks.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.Networks = DefaultNetworks()
	if path := strings.TrimSpace(cfg.Lottery.NetworksFile); path != "" {
		extra, err := LoadNetworksFile(path)
		if err != nil {
			return nil, err
		}
		for name, n := range extra {
			cfg.Networks[name] = n
		}
	}
	cfg.Lottery.Network = strings.ToLower(strings.TrimSpace(cfg.Lottery.Network))
	if _, ok := cfg.Networks[cfg.Lottery.Network]; !ok {
		return nil, fmt.Errorf("unknown network %q (known: %s)", cfg.Lottery.Network, strings.Join(cfg.networkNames(), ", "))
	}
	return &cfg, nil
}

func (c *Config) networkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Network returns the selected network parameters.
func (c *Config) Network() Network {
	return c.Networks[c.Lottery.Network]
}

// IsDevelopment reports whether the selected network uses the in-process
// randomness coordinator.
func (c *Config) IsDevelopment() bool {
	return IsDevelopmentNetwork(c.Lottery.Network)
}

// LotteryConfig builds the immutable lottery configuration for the selected
// network, applying environment overrides.
func (c *Config) LotteryConfig() (domain.Config, error) {
	n := c.Network()
	cfg := domain.Config{
		EntryFee:   n.EntryFee,
		Interval:   n.Interval,
		Randomness: n.Randomness,
	}
	if c.Lottery.EntryFee > 0 {
		cfg.EntryFee = c.Lottery.EntryFee
	}
	if c.Lottery.Interval > 0 {
		cfg.Interval = c.Lottery.Interval
	}
	if cfg.Randomness.NumWords == 0 {
		cfg.Randomness.NumWords = domain.NumbersPerGuess
	}
	if err := cfg.Validate(); err != nil {
		return domain.Config{}, fmt.Errorf("network %s: %w", n.Name, err)
	}
	return cfg, nil
}

// LoadNetworksFile reads a YAML document of the form
//
//	networks:
//	  goerli:
//	    chain_id: 5
//	    ticket_price: 10000000000000000
//	    interval: 30s
//	    gas_lane: "0x..."
func LoadNetworksFile(path string) (map[string]Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks file: %w", err)
	}
	var doc struct {
		Networks map[string]Network `yaml:"networks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse networks file: %w", err)
	}
	out := make(map[string]Network, len(doc.Networks))
	for name, n := range doc.Networks {
		name = strings.ToLower(strings.TrimSpace(name))
		if n.Name == "" {
			n.Name = name
		}
		if n.EntryFee == 0 {
			return nil, fmt.Errorf("network %s: ticket_price is required", name)
		}
		if n.Interval <= 0 {
			return nil, fmt.Errorf("network %s: interval is required", name)
		}
		out[name] = n
	}
	return out, nil
}
