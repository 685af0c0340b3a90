// Command twirc records Twitch chat for a set of channels.
// It:
//   - Loads configuration (env, .env, flags) and initializes structured logging.
//   - Opens the selected storage backend (null, badger or postgres).
//   - Runs one listener per channel group feeding a single store writer.
//   - Optionally exposes /healthz, /readyz and /metrics on HTTP_ADDR.
//
// Shutdown is graceful on SIGINT/SIGTERM: listeners stop first, then the store
// drains its queue and closes the backend. A failed close exits with status 1.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onnwee/twirc/chat"
	"github.com/onnwee/twirc/config"
	"github.com/onnwee/twirc/server"
	"github.com/onnwee/twirc/store"
	"github.com/onnwee/twirc/supervisor"
	"github.com/onnwee/twirc/telemetry"
)

const version = "0.1.0"

// Flag variables.
var (
	streamers []string
	backend   string
	listeners int
)

var rootCmd = &cobra.Command{
	Use:   "twirc",
	Short: "Records Twitch chat messages, deletions, bans and timeouts.",
	Args:  cobra.NoArgs,
	// Errors are logged by run; cobra only decides the exit code.
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().StringArrayVarP(&streamers, "streamers", "s", nil,
		"Channel to record; repeat for several channels (overrides TWIRC_CHANNELS)")
	rootCmd.Flags().StringVar(&backend, "backend", "",
		"Storage backend: null, badger or postgres (overrides TWIRC_BACKEND)")
	rootCmd.Flags().IntVar(&listeners, "listeners", 0,
		"Number of chat sessions to spread channels over; 0 is one per channel (overrides TWIRC_LISTENER_TASKS)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return err
	}
	if cmd.Flags().Changed("streamers") {
		cfg.Streamers = streamers
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend = backend
	}
	if cmd.Flags().Changed("listeners") {
		cfg.ListenerTasks = listeners
	}

	setupLogging(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrNoStreamers) {
			slog.Error("No streamers set", slog.String("hint", "pass --streamers/-s or set TWIRC_CHANNELS"))
		} else {
			slog.Error("invalid configuration", slog.Any("err", err))
		}
		return err
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    "twirc",
		ServiceVersion: version,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return err
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	b, err := supervisor.OpenBackend(ctx, supervisor.BackendConfigFrom(cfg, logger))
	if err != nil {
		slog.Error("failed to open backend", slog.String("backend", cfg.Backend), slog.Any("err", err))
		return err
	}
	slog.Info("backend opened", slog.String("backend", cfg.Backend))

	// HTTP server (health/readiness/metrics)
	if cfg.HTTPAddr != "" {
		pinger, _ := b.(store.Pinger)
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, pinger); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	dial := supervisor.TwitchDialer(chat.TwitchOptions{
		Username:   cfg.TwitchBotUsername,
		OAuthToken: cfg.TwitchOAuthToken,
		Logger:     logger,
	})
	sup := supervisor.New(supervisor.Config{
		Channels:        cfg.Channels(),
		ListenerTasks:   cfg.ListenerTasks,
		Capacity:        cfg.QueueCapacity,
		FlushInterval:   cfg.FlushInterval,
		Respawn:         cfg.Respawn,
		RespawnMaxDelay: cfg.RespawnMaxDelay,
	}, b, dial, logger)

	slog.Info("starting", slog.Any("channels", cfg.Channels()), slog.String("version", version))
	if err := sup.Run(ctx); err != nil {
		slog.Error("shutdown failed", slog.Any("err", err))
		return err
	}
	slog.Info("shut down")
	return nil
}

// setupLogging configures the default logger (level + format). Defaults:
// level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized", slog.String("level", lvl.String()))
}
