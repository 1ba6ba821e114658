// Package config loads the faucet configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	pstrings "faucet/pkg/platform/strings"
)

// Store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	Server   Server
	Faucet   Faucet
	Ledger   Ledger
	Session  Session
	GitHub   GitHub
	Store    Store
	Redis    RedisConfig
	RefSet   RefSet
	Audit    Audit
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"FAUCET_ADDR,default=:8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=3m"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=15s"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS,default=1"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitOff    bool          `env:"RATE_LIMIT_DISABLED,default=false"`
}

type Faucet struct {
	AdminEmail      string        `env:"ADMIN_EMAIL"`
	TimeoutHours    int           `env:"TIMEOUT_HOURS,default=24"`
	TransferTimeout time.Duration `env:"TRANSFER_TIMEOUT,default=2m"`
}

// Cooldown is the configured window between distributions.
func (f Faucet) Cooldown() time.Duration {
	return time.Duration(f.TimeoutHours) * time.Hour
}

type Ledger struct {
	RPCURL       string        `env:"NEO_RPC_URL,default=http://localhost:20332"`
	SenderWIF    string        `env:"SENDER_WIF"`
	Amount       string        `env:"AIRDROP_AMOUNT,default=10"`
	PollInterval time.Duration `env:"NEO_POLL_INTERVAL,default=1s"`
	DialTimeout  time.Duration `env:"NEO_DIAL_TIMEOUT,default=10s"`
}

type Session struct {
	Secret string `env:"SESSION_SECRET"`
	Issuer string `env:"SESSION_ISSUER"`
}

type GitHub struct {
	APIURL string `env:"GITHUB_API_URL,default=https://api.github.com"`
	Token  string `env:"GITHUB_API_TOKEN"`
}

type Store struct {
	Backend         string        `env:"STORE_BACKEND,default=memory"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	OpTimeout       time.Duration `env:"STORE_OP_TIMEOUT,default=2s"`
	CleanupInterval time.Duration `env:"STORE_CLEANUP_INTERVAL,default=10m"`
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE,default=10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS,default=2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT,default=5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT,default=3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT,default=3s"`
}

type RefSet struct {
	URL             string        `env:"REFSET_URL,default=https://raw.githubusercontent.com/electric-capital/crypto-ecosystems/master/data/ecosystems/n/neo.toml"`
	TTL             time.Duration `env:"REFSET_TTL,default=1h"`
	RefreshSchedule string        `env:"REFSET_REFRESH_SCHEDULE,default=@every 30m"`
	FetchTimeout    time.Duration `env:"REFSET_FETCH_TIMEOUT,default=30s"`
}

type Audit struct {
	Brokers string `env:"KAFKA_BROKERS"`
	Topic   string `env:"AUDIT_TOPIC,default=faucet.audit"`
}

// BrokerList splits KAFKA_BROKERS on commas.
func (a Audit) BrokerList() []string {
	return pstrings.SplitList(a.Brokers, ",")
}

// Load reads an optional .env file and decodes the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	if c.Faucet.TimeoutHours < 1 {
		errs = append(errs, errors.New("TIMEOUT_HOURS must be at least 1"))
	}
	if strings.TrimSpace(c.Ledger.SenderWIF) == "" {
		errs = append(errs, errors.New("SENDER_WIF is required"))
	}
	if len(c.Session.Secret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 characters"))
	}
	return errors.Join(errs...)
}
