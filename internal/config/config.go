// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/atmx/trading-game/internal/oracle"
	"github.com/atmx/trading-game/internal/pair"
)

// Oracle modes.
const (
	OracleFeed   = "feed"
	OracleRecord = "record"
)

type Config struct {
	Port        string        `env:"PORT" envDefault:"8080"`
	DatabaseURL string        `env:"DATABASE_URL"`
	RedisURL    string        `env:"REDIS_URL"`
	PebblePath  string        `env:"PEBBLE_PATH"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"60s"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaQuotesTopic string   `env:"KAFKA_QUOTES_TOPIC" envDefault:"price-quotes"`
	KafkaEventsTopic string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"game-events"`
	KafkaGroupID     string   `env:"KAFKA_GROUP_ID" envDefault:"trading-game"`

	OracleMode        string            `env:"ORACLE_MODE" envDefault:"record"`
	OracleFeeds       map[string]string `env:"ORACLE_FEEDS" envSeparator:"," envKeyValSeparator:":"`
	OraclePairs       []string          `env:"ORACLE_PAIRS" envSeparator:"," envDefault:"SOL/USD,BTC/USD,ETH/USD"`
	OracleMaxPriceAge time.Duration     `env:"ORACLE_MAX_PRICE_AGE" envDefault:"30s"`
	QuoteCacheTTL     time.Duration     `env:"QUOTE_CACHE_TTL" envDefault:"1s"`

	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch c.OracleMode {
	case OracleFeed:
		if len(c.OracleFeeds) == 0 {
			return fmt.Errorf("config: ORACLE_FEEDS is required when ORACLE_MODE=%s", OracleFeed)
		}
		for p := range c.OracleFeeds {
			if _, err := pair.Parse(pair.Normalize(p)); err != nil {
				return fmt.Errorf("config: ORACLE_FEEDS: %w", err)
			}
		}
	case OracleRecord:
		if err := pair.ValidateSet(c.normalizedPairs()); err != nil {
			return fmt.Errorf("config: ORACLE_PAIRS: %w", err)
		}
	default:
		return fmt.Errorf("config: unknown ORACLE_MODE %q", c.OracleMode)
	}
	if c.OracleMaxPriceAge <= 0 {
		return fmt.Errorf("config: ORACLE_MAX_PRICE_AGE must be positive")
	}
	return nil
}

// Gateway builds the oracle gateway selected by OracleMode.
func (c Config) Gateway() oracle.Gateway {
	if c.OracleMode == OracleFeed {
		feeds := make(map[string]string, len(c.OracleFeeds))
		for p, id := range c.OracleFeeds {
			feeds[pair.Normalize(p)] = strings.TrimSpace(id)
		}
		return oracle.NewFeedGateway(feeds, c.OracleMaxPriceAge)
	}
	return oracle.NewRecordGateway(c.normalizedPairs(), c.OracleMaxPriceAge)
}

func (c Config) normalizedPairs() []string {
	pairs := make([]string, len(c.OraclePairs))
	for i, p := range c.OraclePairs {
		pairs[i] = pair.Normalize(p)
	}
	return pairs
}
