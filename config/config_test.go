package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

// unsetEnv removes keys for the duration of the test so defaults apply.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "TWIRC_CHANNELS", "TWIRC_BACKEND", "TWIRC_QUEUE_CAPACITY", "TWIRC_FLUSH_INTERVAL", "TWIRC_RESPAWN", "BADGER_DIR", "TWIRC_TRACE_SAMPLE_RATIO")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend != BackendNull {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendNull)
	}
	if cfg.QueueCapacity != 200 {
		t.Errorf("QueueCapacity = %d, want 200", cfg.QueueCapacity)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.FlushInterval)
	}
	if !cfg.Respawn {
		t.Errorf("Respawn = false, want true")
	}
	if cfg.BadgerDir == "" {
		t.Errorf("expected default badger dir, got empty")
	}
	if cfg.TraceSampleRatio != 0.1 {
		t.Errorf("TraceSampleRatio = %v, want 0.1", cfg.TraceSampleRatio)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TWIRC_CHANNELS", "a,b")
	t.Setenv("TWIRC_BACKEND", "badger")
	t.Setenv("TWIRC_LISTENER_TASKS", "2")
	t.Setenv("TWIRC_RESPAWN", "false")
	t.Setenv("BADGER_DIR", "/data/twirc")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend != BackendBadger || cfg.ListenerTasks != 2 || cfg.Respawn || cfg.BadgerDir != "/data/twirc" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestChannels(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"env list", Config{ChannelList: " Foo ,bar,,#baz"}, []string{"foo", "bar", "baz"}},
		{"dedupe", Config{ChannelList: "foo,FOO,foo"}, []string{"foo"}},
		{"flags win", Config{ChannelList: "foo", Streamers: []string{"x", "y"}}, []string{"x", "y"}},
		{"empty", Config{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.Channels()
			if len(got) != len(tt.want) {
				t.Fatalf("Channels() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Channels() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func valid() Config {
	return Config{
		ChannelList:     "streamer",
		Backend:         BackendNull,
		QueueCapacity:   200,
		RespawnMaxDelay: time.Minute,
		DBMaxConns:      4,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "sqlite" }, "Backend"},
		{"postgres without dsn", func(c *Config) { c.Backend = BackendPostgres }, "DBDsn"},
		{"zero capacity", func(c *Config) { c.QueueCapacity = 0 }, "QueueCapacity"},
		{"negative listeners", func(c *Config) { c.ListenerTasks = -1 }, "ListenerTasks"},
		{"username without token", func(c *Config) { c.TwitchBotUsername = "bot" }, "TwitchOAuthToken"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "LogFormat"},
		{"sample ratio above one", func(c *Config) { c.TraceSampleRatio = 1.5 }, "TraceSampleRatio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error = %v, want validation errors", err)
			}
			if verrs[0].Field() != tt.field {
				t.Errorf("failed field = %s, want %s", verrs[0].Field(), tt.field)
			}
		})
	}
}

func TestValidateNoStreamers(t *testing.T) {
	cfg := valid()
	cfg.ChannelList = " , "
	if err := cfg.Validate(); !errors.Is(err, ErrNoStreamers) {
		t.Errorf("Validate() error = %v, want ErrNoStreamers", err)
	}

	cfg = valid()
	cfg.Backend = BackendPostgres
	cfg.DBDsn = "postgres://localhost/twirc"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
