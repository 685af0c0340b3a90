package chat

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/twirc/domain"
)

type fakeSession struct {
	msgs chan twitch.Message
	errs chan error

	mu     sync.Mutex
	joined []string
	closed int
}

func newFakeSession() *fakeSession {
	return &fakeSession{msgs: make(chan twitch.Message, 16), errs: make(chan error, 1)}
}

func (f *fakeSession) Join(channels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, channels...)
}

func (f *fakeSession) Messages() <-chan twitch.Message { return f.msgs }
func (f *fakeSession) Errors() <-chan error            { return f.errs }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recorder) Submit(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) snapshot() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func bufferLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestListenerForwardsEvents(t *testing.T) {
	sess := newFakeSession()
	rec := &recorder{}
	logger, logs := bufferLogger()
	l := &Listener{ID: 3, Channels: []string{"streamer", "other"}, Session: sess, Submitter: rec, Logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	sess.msgs <- privmsg()
	sess.msgs <- &twitch.UserJoinMessage{}
	sess.msgs <- clearchat("77", 30)
	sess.msgs <- &twitch.ClearMessage{TargetMsgID: msgID}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	events := rec.snapshot()
	require.Equal(t, domain.KindAdd, events[0].Kind())
	require.Equal(t, domain.KindSuspend, events[1].Kind())
	require.Equal(t, domain.KindDelete, events[2].Kind())
	require.Equal(t, []string{"streamer", "other"}, sess.joined)
	require.Equal(t, 1, sess.closeCount())

	out := logs.String()
	require.Contains(t, out, "listener=3")
	require.Contains(t, out, `msg=message`)
	require.Contains(t, out, "duration=30s")
	require.Contains(t, out, `msg="message deleted"`)
}

func TestCancelledListenerEmitsNothing(t *testing.T) {
	sess := newFakeSession()
	for i := 0; i < 5; i++ {
		sess.msgs <- privmsg()
	}
	rec := &recorder{}
	l := &Listener{Session: sess, Submitter: rec, Logger: slog.New(slog.DiscardHandler)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))
	require.Empty(t, rec.snapshot())
	require.Equal(t, 1, sess.closeCount())
}

func TestListenerTransportError(t *testing.T) {
	sess := newFakeSession()
	boom := errors.New("connection reset")
	sess.errs <- boom
	l := &Listener{Session: sess, Submitter: &recorder{}, Logger: slog.New(slog.DiscardHandler)}

	err := l.Run(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, sess.closeCount())
}

func TestListenerSkipsBadMessages(t *testing.T) {
	sess := newFakeSession()
	bad := privmsg()
	bad.User.ID = "abc"
	sess.msgs <- bad
	sess.msgs <- privmsg()

	rec := &recorder{}
	logger, logs := bufferLogger()
	l := &Listener{Session: sess, Submitter: rec, Logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	out := logs.String()
	require.Contains(t, out, "dropping untranslatable message")
	require.Contains(t, out, "field=sender_id")
	require.Contains(t, out, "value=abc")
}

func TestListenerKeepsGoingWhenSubmitFails(t *testing.T) {
	sess := newFakeSession()
	sess.msgs <- privmsg()
	sess.msgs <- privmsg()
	rec := &recorder{err: errors.New("closed")}
	l := &Listener{Session: sess, Submitter: rec, Logger: slog.New(slog.DiscardHandler)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
