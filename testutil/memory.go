package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/onnwee/twirc/domain"
	"github.com/onnwee/twirc/store"
)

// MemoryBackend is a map-backed store.Backend for tests. Block makes every
// apply wait until Unblock, which lets tests stall the store actor.
type MemoryBackend struct {
	mu       sync.Mutex
	messages map[uuid.UUID]domain.ChatMessage
	order    []uuid.UUID
	history  []domain.ModerationRecord
	gate     chan struct{}
	closed   bool
	CloseErr error
}

var _ store.Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{messages: make(map[uuid.UUID]domain.ChatMessage)}
}

// Block holds every following apply until Unblock is called.
func (m *MemoryBackend) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Unblock releases applies held by Block.
func (m *MemoryBackend) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

func (m *MemoryBackend) wait(ctx context.Context) error {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemoryBackend) ApplyAdd(ctx context.Context, msg domain.ChatMessage) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.MessageID]; ok {
		return store.ErrDuplicate
	}
	m.messages[msg.MessageID] = msg
	m.order = append(m.order, msg.MessageID)
	return nil
}

func (m *MemoryBackend) ApplyDelete(ctx context.Context, id uuid.UUID) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Deleted = true
	m.messages[id] = msg
	return nil
}

func (m *MemoryBackend) ApplyModeration(ctx context.Context, rec domain.ModerationRecord) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, msg := range m.messages {
		if msg.ChannelID == rec.ChannelID && msg.SenderID == rec.UserID {
			msg.Deleted = true
			m.messages[id] = msg
		}
	}
	m.history = append(m.history, rec)
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseErr
}

// Message returns the stored record for id.
func (m *MemoryBackend) Message(id uuid.UUID) (domain.ChatMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	return msg, ok
}

// Messages returns all records in insertion order.
func (m *MemoryBackend) Messages() []domain.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ChatMessage, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.messages[id])
	}
	return out
}

// History returns the moderation records in apply order.
func (m *MemoryBackend) History() []domain.ModerationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ModerationRecord(nil), m.history...)
}

// Closed reports whether Close was called.
func (m *MemoryBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
