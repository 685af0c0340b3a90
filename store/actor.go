package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/twirc/domain"
	"github.com/onnwee/twirc/telemetry"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 200

var errBackendPanic = errors.New("backend panic")

// Submitter is the inbound side of the actor handed to listeners.
type Submitter interface {
	Submit(ctx context.Context, ev domain.Event) error
}

// Actor is the only goroutine allowed to write to its Backend. Events are
// applied strictly in the order they were dequeued.
type Actor struct {
	backend    Backend
	queue      chan domain.Event
	done       chan struct{}
	log        *slog.Logger
	flushEvery time.Duration

	// mu is held shared by Submit and exclusively by Stop, so no event can
	// be queued behind the sentinel.
	mu       sync.RWMutex
	stopping bool
}

// Option configures an Actor.
type Option func(*Actor)

// WithCapacity sets the bounded queue size.
func WithCapacity(n int) Option {
	return func(a *Actor) {
		if n > 0 {
			a.queue = make(chan domain.Event, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Actor) { a.log = l }
}

// WithFlushInterval enables a periodic Flush for backends implementing Flusher.
func WithFlushInterval(d time.Duration) Option {
	return func(a *Actor) { a.flushEvery = d }
}

// NewActor returns an actor owning backend. Call Run to start it.
func NewActor(backend Backend, opts ...Option) *Actor {
	a := &Actor{
		backend: backend,
		queue:   make(chan domain.Event, DefaultCapacity),
		done:    make(chan struct{}),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(slog.String("component", "store"))
	return a
}

// Submit enqueues ev, waiting while the queue is full. It returns ctx.Err()
// if ctx ends first and ErrClosed once Stop has been called. Submitting the
// Stop sentinel is the same as calling Stop.
func (a *Actor) Submit(ctx context.Context, ev domain.Event) error {
	if _, ok := ev.(domain.Stop); ok {
		return a.Stop(ctx)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopping {
		return ErrClosed
	}
	return a.enqueue(ctx, ev)
}

// Stop enqueues the Stop sentinel behind everything already submitted. After
// it is called Submit returns ErrClosed.
func (a *Actor) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopping {
		return ErrClosed
	}
	if err := a.enqueue(ctx, domain.Stop{}); err != nil {
		return err
	}
	a.stopping = true
	return nil
}

func (a *Actor) enqueue(ctx context.Context, ev domain.Event) error {
	select {
	case a.queue <- ev:
		telemetry.IncSubmitted(string(ev.Kind()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Len reports the number of queued events.
func (a *Actor) Len() int { return len(a.queue) }

// Run applies queued events until it dequeues Stop, then closes the backend.
// Cancelling ctx does not end the loop; only Stop does, so that everything
// queued ahead of it is written.
func (a *Actor) Run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var tick <-chan time.Time
	if _, ok := a.backend.(Flusher); ok && a.flushEvery > 0 {
		t := time.NewTicker(a.flushEvery)
		defer t.Stop()
		tick = t.C
	}

	a.log.Info("store loop started", slog.Int("capacity", cap(a.queue)))
	for {
		select {
		case ev := <-a.queue:
			if _, ok := ev.(domain.Stop); ok {
				a.log.Info("store loop break")
				return a.shutdown()
			}
			a.apply(ctx, ev)
			telemetry.SetQueueDepth(len(a.queue))
		case <-tick:
			a.flush()
			telemetry.SetQueueDepth(len(a.queue))
		}
	}
}

func (a *Actor) shutdown() error {
	err := a.backend.Close()
	close(a.done)
	telemetry.SetQueueDepth(0)

	if err != nil {
		a.log.Error("backend close failed", slog.Any("err", err))
		return fmt.Errorf("%w: %w", ErrDegradedShutdown, err)
	}
	a.log.Info("backend closed")
	return nil
}

func (a *Actor) flush() {
	f, ok := a.backend.(Flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		a.log.Warn("backend flush failed", slog.Any("err", err))
	}
}

func (a *Actor) apply(ctx context.Context, ev domain.Event) {
	kind := string(ev.Kind())
	key := EventKey(ev)
	ctx, span := telemetry.StartApplySpan(ctx, kind, key)

	var err error
	telemetry.TimeFunc(telemetry.ApplyObserver(kind), func() {
		err = a.dispatch(ctx, ev)
	})

	outcome := ""
	switch {
	case err == nil:
		telemetry.IncApplied(kind)
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
		a.log.Warn("apply skipped: message not found", slog.String("kind", kind), slog.String("key", key))
	case errors.Is(err, ErrDuplicate):
		outcome = "duplicate"
		a.log.Warn("apply rejected: duplicate message", slog.String("kind", kind), slog.String("key", key))
	default:
		outcome = "error"
		a.log.Error("apply failed", slog.String("kind", kind), slog.String("key", key), slog.Any("event", ev), slog.Any("err", err))
	}
	if outcome != "" {
		telemetry.IncApplyFailure(kind, outcome)
	}
	telemetry.EndApplySpan(span, outcome, err)
}

func (a *Actor) dispatch(ctx context.Context, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errBackendPanic, r)
		}
	}()
	switch e := ev.(type) {
	case domain.AddMessage:
		return a.backend.ApplyAdd(ctx, e.Message)
	case domain.DeleteMessage:
		return a.backend.ApplyDelete(ctx, e.MessageID)
	case domain.BanUser:
		return a.backend.ApplyModeration(ctx, e.Record)
	case domain.SuspendUser:
		return a.backend.ApplyModeration(ctx, e.Record)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// EventKey identifies what ev touches: a message id, or channel/user for
// moderation.
func EventKey(ev domain.Event) string {
	switch e := ev.(type) {
	case domain.AddMessage:
		return e.Message.MessageID.String()
	case domain.DeleteMessage:
		return e.MessageID.String()
	case domain.BanUser:
		return fmt.Sprintf("%d/%d", e.Record.ChannelID, e.Record.UserID)
	case domain.SuspendUser:
		return fmt.Sprintf("%d/%d", e.Record.ChannelID, e.Record.UserID)
	default:
		return ""
	}
}
