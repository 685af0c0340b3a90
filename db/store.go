package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onnwee/twirc/domain"
	"github.com/onnwee/twirc/store"
	"github.com/onnwee/twirc/telemetry"
)

// Statement names. Each is prepared once per pooled connection and then
// executed by name.
const (
	stmtInsertMessage = "twirc_insert_message"
	stmtDeleteMessage = "twirc_delete_message"
	stmtDeleteByUser  = "twirc_delete_user_messages"
	stmtInsertHistory = "twirc_insert_history"
)

var statements = map[string]string{
	stmtInsertMessage: `INSERT INTO chat_messages
		(message_id, channel_id, channel_login, sender_id, sender_login, sender_name, message_text, server_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO NOTHING`,
	stmtDeleteMessage: `UPDATE chat_messages SET deleted = TRUE WHERE message_id = $1`,
	stmtDeleteByUser:  `UPDATE chat_messages SET deleted = TRUE WHERE channel_id = $1 AND sender_id = $2 AND NOT deleted`,
	stmtInsertHistory: `INSERT INTO moderation_history
		(channel_id, channel_login, user_id, user_login, server_timestamp, timeout_seconds, messages_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// RowsError reports a statement that affected an unexpected number of rows.
// It unwraps to store.ErrNotFound or store.ErrDuplicate.
type RowsError struct {
	Statement string
	Rows      int64
	Err       error
}

func (e *RowsError) Error() string {
	return fmt.Sprintf("%s affected %d rows: %v", e.Statement, e.Rows, e.Err)
}

func (e *RowsError) Unwrap() error { return e.Err }

// Options configures Open.
type Options struct {
	DSN      string
	MaxConns int32
	// Migrate applies the embedded migrations before the pool connects.
	Migrate bool
	Logger  *slog.Logger
}

// Store is the Postgres store.Backend.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var (
	_ store.Backend = (*Store)(nil)
	_ store.Pinger  = (*Store)(nil)
	_ store.Flusher = (*Store)(nil)
)

// Open migrates (optionally), connects the pool and verifies it with a ping.
func Open(ctx context.Context, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "db"))

	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse DB_DSN: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.AfterConnect = prepareStatements

	if opts.Migrate {
		if err := RunMigrations(opts.DSN); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info("postgres store opened", slog.Int("max_conns", int(cfg.MaxConns)))
	return &Store{pool: pool, log: log}, nil
}

func prepareStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %s: %w", name, err)
		}
	}
	return nil
}

// ApplyAdd inserts msg. A conflicting message id inserts nothing and is
// reported as store.ErrDuplicate.
func (s *Store) ApplyAdd(ctx context.Context, msg domain.ChatMessage) error {
	tag, err := s.pool.Exec(ctx, stmtInsertMessage,
		msg.MessageID,
		msg.ChannelID,
		msg.ChannelLogin,
		msg.SenderID,
		msg.SenderLogin,
		msg.SenderName,
		msg.Text,
		msg.ServerTimestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.MessageID, err)
	}
	if n := tag.RowsAffected(); n != 1 {
		return &RowsError{Statement: stmtInsertMessage, Rows: n, Err: store.ErrDuplicate}
	}
	return nil
}

// ApplyDelete soft-deletes one message.
func (s *Store) ApplyDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, stmtDeleteMessage, id)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if n := tag.RowsAffected(); n == 0 {
		return &RowsError{Statement: stmtDeleteMessage, Rows: n, Err: store.ErrNotFound}
	}
	return nil
}

// ApplyModeration soft-deletes the user's messages in the channel and records
// the ban or timeout, in one transaction.
func (s *Store) ApplyModeration(ctx context.Context, rec domain.ModerationRecord) error {
	var timeout *int64
	if !rec.Permanent() {
		secs := int64(rec.Duration / time.Second)
		timeout = &secs
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmtDeleteByUser, rec.ChannelID, rec.UserID)
		if err != nil {
			return fmt.Errorf("delete messages of %d/%d: %w", rec.ChannelID, rec.UserID, err)
		}
		deleted := tag.RowsAffected()
		if _, err := tx.Exec(ctx, stmtInsertHistory,
			rec.ChannelID,
			rec.ChannelLogin,
			rec.UserID,
			rec.UserLogin,
			rec.ServerTimestamp,
			timeout,
			deleted,
		); err != nil {
			return fmt.Errorf("insert moderation history: %w", err)
		}
		s.log.Debug("moderation applied",
			slog.Int64("channel_id", rec.ChannelID),
			slog.Int64("user_id", rec.UserID),
			slog.Int64("messages_deleted", deleted))
		return nil
	})
}

// Message loads one message by id.
func (s *Store) Message(ctx context.Context, id uuid.UUID) (domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := s.pool.QueryRow(ctx, `SELECT message_id, channel_id, channel_login, sender_id, sender_login, sender_name,
		message_text, server_timestamp, deleted FROM chat_messages WHERE message_id = $1`, id).Scan(
		&m.MessageID,
		&m.ChannelID,
		&m.ChannelLogin,
		&m.SenderID,
		&m.SenderLogin,
		&m.SenderName,
		&m.Text,
		&m.ServerTimestamp,
		&m.Deleted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChatMessage{}, store.ErrNotFound
	}
	if err != nil {
		return domain.ChatMessage{}, err
	}
	m.ServerTimestamp = m.ServerTimestamp.UTC()
	return m, nil
}

// History returns the moderation records of a channel, oldest first.
func (s *Store) History(ctx context.Context, channelID int64) ([]domain.ModerationRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT channel_id, channel_login, user_id, user_login, server_timestamp, timeout_seconds
		FROM moderation_history WHERE channel_id = $1 ORDER BY server_timestamp, id`, channelID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ModerationRecord, error) {
		var r domain.ModerationRecord
		var timeout *int64
		if err := row.Scan(&r.ChannelID, &r.ChannelLogin, &r.UserID, &r.UserLogin, &r.ServerTimestamp, &timeout); err != nil {
			return r, err
		}
		r.ServerTimestamp = r.ServerTimestamp.UTC()
		if timeout != nil {
			r.Duration = time.Duration(*timeout) * time.Second
		}
		return r, nil
	})
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Flush publishes pool statistics. Writes are not buffered.
func (s *Store) Flush() error {
	stat := s.pool.Stat()
	telemetry.UpdateDatabasePoolMetrics(stat.AcquiredConns(), stat.IdleConns())
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
