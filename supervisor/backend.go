package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/twirc/config"
	"github.com/onnwee/twirc/db"
	"github.com/onnwee/twirc/kv"
	"github.com/onnwee/twirc/store"
)

// BackendConfig selects and configures the persistence backend.
type BackendConfig struct {
	Kind             string
	BadgerDir        string
	BadgerSyncWrites bool
	DSN              string
	MaxConns         int32
	Logger           *slog.Logger
}

// BackendConfigFrom copies the backend settings out of cfg.
func BackendConfigFrom(cfg *config.Config, logger *slog.Logger) BackendConfig {
	return BackendConfig{
		Kind:             cfg.Backend,
		BadgerDir:        cfg.BadgerDir,
		BadgerSyncWrites: cfg.BadgerSyncWrites,
		DSN:              cfg.DBDsn,
		MaxConns:         int32(cfg.DBMaxConns),
		Logger:           logger,
	}
}

// OpenBackend opens the backend named by bc.Kind. An empty kind means null.
func OpenBackend(ctx context.Context, bc BackendConfig) (store.Backend, error) {
	switch bc.Kind {
	case "", config.BackendNull:
		return &store.NullBackend{}, nil
	case config.BackendBadger:
		s, err := kv.Open(kv.Options{
			Dir:        bc.BadgerDir,
			SyncWrites: bc.BadgerSyncWrites,
			Logger:     bc.Logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := db.Open(ctx, db.Options{
			DSN:      bc.DSN,
			MaxConns: bc.MaxConns,
			Migrate:  true,
			Logger:   bc.Logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", bc.Kind)
	}
}
