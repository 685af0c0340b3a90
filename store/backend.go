//go:generate go run go.uber.org/mock/mockgen -source=backend.go -destination=../mocks/mock_backend.go -package=mocks

// Package store owns the single writer of the chat history: the Actor drains a
// bounded queue of domain events in order and applies each one to a Backend.
package store

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/onnwee/twirc/domain"
)

var (
	// ErrNotFound is returned when a delete references an unknown message.
	ErrNotFound = errors.New("message not found")
	// ErrDuplicate is returned when an add reuses an existing message id.
	ErrDuplicate = errors.New("message already recorded")
	// ErrClosed is returned by Submit once the actor has stopped.
	ErrClosed = errors.New("store actor closed")
	// ErrDegradedShutdown wraps a failure to close the backend.
	ErrDegradedShutdown = errors.New("degraded shutdown")
)

// Backend durably applies domain events. Implementations are driven by one
// goroutine at a time and need no locking of their own.
type Backend interface {
	// ApplyAdd creates the record keyed by msg.MessageID.
	ApplyAdd(ctx context.Context, msg domain.ChatMessage) error
	// ApplyDelete marks one record deleted.
	ApplyDelete(ctx context.Context, messageID uuid.UUID) error
	// ApplyModeration marks every record of (ChannelID, UserID) deleted and
	// appends rec to the moderation history.
	ApplyModeration(ctx context.Context, rec domain.ModerationRecord) error
	Close() error
}

// Flusher is implemented by backends with periodic housekeeping, such as
// syncing buffered writes or publishing connection stats.
type Flusher interface {
	Flush() error
}

// Pinger is implemented by backends with a remote connection to check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NullBackend discards every event. It only counts what it was given.
type NullBackend struct {
	adds, deletes, moderations atomic.Int64
}

var _ Backend = (*NullBackend)(nil)

func (n *NullBackend) ApplyAdd(context.Context, domain.ChatMessage) error {
	n.adds.Add(1)
	return nil
}

func (n *NullBackend) ApplyDelete(context.Context, uuid.UUID) error {
	n.deletes.Add(1)
	return nil
}

func (n *NullBackend) ApplyModeration(context.Context, domain.ModerationRecord) error {
	n.moderations.Add(1)
	return nil
}

func (n *NullBackend) Close() error { return nil }

// Counts returns how many adds, deletes and moderations were discarded.
func (n *NullBackend) Counts() (adds, deletes, moderations int64) {
	return n.adds.Load(), n.deletes.Load(), n.moderations.Load()
}
