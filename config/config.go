// Package config loads environment variables (and an optional .env file) into
// a typed Config used across the service. Defaults let the binary run locally
// with nothing but a channel list; Validate rejects inconsistent settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Backend names accepted by TWIRC_BACKEND.
const (
	BackendNull     = "null"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// ErrNoStreamers is returned by Validate when no channel is configured.
var ErrNoStreamers = errors.New("No streamers set") //nolint:staticcheck // operator-facing message

type Config struct {
	// Ingestion
	ChannelList     string        `env:"TWIRC_CHANNELS"`
	Backend         string        `env:"TWIRC_BACKEND,default=null" validate:"oneof=null badger postgres"`
	QueueCapacity   int           `env:"TWIRC_QUEUE_CAPACITY,default=200" validate:"gt=0"`
	ListenerTasks   int           `env:"TWIRC_LISTENER_TASKS,default=0" validate:"gte=0"`
	FlushInterval   time.Duration `env:"TWIRC_FLUSH_INTERVAL,default=5s" validate:"gte=0"`
	Respawn         bool          `env:"TWIRC_RESPAWN,default=true"`
	RespawnMaxDelay time.Duration `env:"TWIRC_RESPAWN_MAX_DELAY,default=1m" validate:"gt=0"`

	// Badger
	BadgerDir        string `env:"BADGER_DIR"`
	BadgerSyncWrites bool   `env:"BADGER_SYNC_WRITES,default=false"`

	// Postgres
	DBDsn      string `env:"DB_DSN" validate:"required_if=Backend postgres"`
	DBMaxConns int    `env:"DB_MAX_CONNS,default=4" validate:"gt=0"`

	// Twitch (optional; anonymous read-only login when unset)
	TwitchBotUsername string `env:"TWITCH_BOT_USERNAME"`
	TwitchOAuthToken  string `env:"TWITCH_OAUTH_TOKEN" validate:"required_with=TwitchBotUsername"`

	// Ambient
	HTTPAddr     string `env:"HTTP_ADDR"`
	LogLevel     string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	LogFormat    string `env:"LOG_FORMAT,default=text" validate:"oneof=text json"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// TraceSampleRatio is the fraction of store writes traced.
	TraceSampleRatio float64 `env:"TWIRC_TRACE_SAMPLE_RATIO,default=0.1" validate:"gte=0,lte=1"`

	// Streamers set from the command line; they replace ChannelList.
	Streamers []string
}

var validate = validator.New()

// Load reads a .env file if present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if cfg.BadgerDir == "" {
		cfg.BadgerDir = filepath.Join(os.TempDir(), "twirc")
	}
	return cfg, nil
}

// Channels returns the lowercased, de-duplicated channel logins, preferring
// Streamers over TWIRC_CHANNELS.
func (c *Config) Channels() []string {
	raw := c.Streamers
	if len(raw) == 0 {
		raw = strings.Split(c.ChannelList, ",")
	}
	names := lo.FilterMap(raw, func(s string, _ int) (string, bool) {
		s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
		return s, s != ""
	})
	return lo.Uniq(names)
}

// Validate checks field constraints and that at least one channel is set.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.Channels()) == 0 {
		return ErrNoStreamers
	}
	return nil
}
