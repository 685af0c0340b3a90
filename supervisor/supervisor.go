// Package supervisor runs the listeners and the store actor and shuts them
// down in order: listeners first, then the actor, then the backend.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/samber/lo"

	"github.com/onnwee/twirc/chat"
	"github.com/onnwee/twirc/store"
)

// ErrNoSources is returned by Run when there is no channel to listen to.
var ErrNoSources = errors.New("no sources configured")

// Config controls listener layout and the actor.
type Config struct {
	Channels []string
	// ListenerTasks is the number of sessions to spread Channels over; zero
	// means one session per channel.
	ListenerTasks   int
	Capacity        int
	FlushInterval   time.Duration
	Respawn         bool
	RespawnMaxDelay time.Duration
}

// Dialer opens a chat session for listener id.
type Dialer func(ctx context.Context, id int, channels []string) (chat.Session, error)

// TwitchDialer returns a Dialer that opens go-twitch-irc sessions.
func TwitchDialer(opts chat.TwitchOptions) Dialer {
	return func(ctx context.Context, id int, _ []string) (chat.Session, error) {
		o := opts
		if o.Logger != nil {
			o.Logger = o.Logger.With(slog.String("component", "twitch"), slog.Int("listener", id))
		}
		return chat.NewTwitchSession(ctx, o), nil
	}
}

type Supervisor struct {
	cfg     Config
	backend store.Backend
	dial    Dialer
	base    *slog.Logger
	log     *slog.Logger
}

func New(cfg Config, backend store.Backend, dial Dialer, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RespawnMaxDelay <= 0 {
		cfg.RespawnMaxDelay = time.Minute
	}
	return &Supervisor{
		cfg:     cfg,
		backend: backend,
		dial:    dial,
		base:    logger,
		log:     logger.With(slog.String("component", "supervisor")),
	}
}

// Groups splits channels into at most tasks groups of equal size. With
// tasks <= 0 every channel gets its own group.
func Groups(channels []string, tasks int) [][]string {
	channels = lo.Uniq(channels)
	if len(channels) == 0 {
		return nil
	}
	size := 1
	if tasks > 0 {
		size = (len(channels) + tasks - 1) / tasks
	}
	return lo.Chunk(channels, size)
}

// Run starts the actor and one listener per channel group, then blocks until
// ctx is cancelled and every listener has returned. Only then is the actor
// stopped, so no listener can submit after Stop. The actor's shutdown error
// is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	groups := Groups(s.cfg.Channels, s.cfg.ListenerTasks)
	if len(groups) == 0 {
		return ErrNoSources
	}

	actor := store.NewActor(s.backend,
		store.WithCapacity(s.cfg.Capacity),
		store.WithFlushInterval(s.cfg.FlushInterval),
		store.WithLogger(s.base),
	)
	runErr := make(chan error, 1)
	go func() { runErr <- actor.Run(ctx) }()

	s.log.Info("starting listeners",
		slog.Int("listeners", len(groups)),
		slog.Int("channels", len(lo.Flatten(groups))))

	var wg sync.WaitGroup
	for id, channels := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.supervise(ctx, id, channels, actor)
		}()
	}
	wg.Wait()
	s.log.Info("all listeners stopped; stopping store")

	if err := actor.Stop(context.Background()); err != nil && !errors.Is(err, store.ErrClosed) {
		s.log.Error("stop store actor", slog.Any("err", err))
	}
	err := <-runErr
	if err != nil {
		s.log.Error("store shut down degraded", slog.Any("err", err))
	} else {
		s.log.Info("store shut down cleanly")
	}
	return err
}

// supervise runs one listener and, when respawn is enabled, re-dials it
// after transport or dial failures until ctx is cancelled.
func (s *Supervisor) supervise(ctx context.Context, id int, channels []string, sub store.Submitter) {
	log := s.log.With(slog.Int("listener", id))
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = s.cfg.RespawnMaxDelay
	bo.InitialInterval = min(bo.InitialInterval, bo.MaxInterval)
	bo.Reset()

	for {
		started := time.Now()
		err := s.runOnce(ctx, id, channels, sub)
		if ctx.Err() != nil || err == nil {
			return
		}
		if !s.cfg.Respawn {
			log.Error("listener exited", slog.Any("err", err))
			return
		}
		if time.Since(started) > s.cfg.RespawnMaxDelay {
			bo.Reset()
		}
		delay := bo.NextBackOff()
		log.Warn("listener exited; respawning",
			slog.Any("err", err),
			slog.Duration("delay", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, id int, channels []string, sub store.Submitter) error {
	sess, err := s.dial(ctx, id, channels)
	if err != nil {
		return fmt.Errorf("dial listener %d: %w", id, err)
	}
	l := &chat.Listener{ID: id, Channels: channels, Session: sess, Submitter: sub, Logger: s.base}
	return l.Run(ctx)
}
