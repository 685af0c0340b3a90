package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/twirc/domain"
	"github.com/onnwee/twirc/store"
	"github.com/onnwee/twirc/telemetry"
)

// ErrTransport wraps the failure that ended a listener's session.
var ErrTransport = errors.New("chat transport failed")

// Listener reads one Session and forwards translated events to the store.
type Listener struct {
	// ID identifies the listener task in logs; assigned by whoever spawns it.
	ID        int
	Channels  []string
	Session   Session
	Submitter store.Submitter
	Logger    *slog.Logger
}

// Run joins the channels and forwards events until ctx is cancelled (returns
// nil) or the transport fails (returns an error wrapping ErrTransport). The
// session is closed in both cases.
func (l *Listener) Run(ctx context.Context) (err error) {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "listener"), slog.Int("listener", l.ID))

	telemetry.ListenerStarted()
	defer func() {
		reason := "cancelled"
		if err != nil {
			reason = "transport"
		}
		telemetry.ListenerStopped(reason)
		if cerr := l.Session.Close(); cerr != nil {
			log.Debug("session close", slog.Any("err", cerr))
		}
		log.Info("listener stopped", slog.String("reason", reason))
	}()

	l.Session.Join(l.Channels...)
	log.Info("listener started", slog.Any("channels", l.Channels))

	for {
		select {
		case <-ctx.Done():
			return nil
		case terr := <-l.Session.Errors():
			return fmt.Errorf("%w: %w", ErrTransport, terr)
		case msg := <-l.Session.Messages():
			// Messages may already be buffered when cancellation lands.
			if ctx.Err() != nil {
				return nil
			}
			l.handle(ctx, log, msg)
		}
	}
}

func (l *Listener) handle(ctx context.Context, log *slog.Logger, msg twitch.Message) {
	ev, err := Translate(msg)
	if err != nil {
		telemetry.IncTranslateError()
		attrs := []any{slog.Any("err", err)}
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			attrs = append(attrs, slog.String("field", pe.Field), slog.String("value", pe.Value))
		}
		log.Warn("dropping untranslatable message", attrs...)
		return
	}
	if ev == nil {
		return
	}
	audit(log, ev)

	// An event that was received before cancellation is still delivered.
	if err := l.Submitter.Submit(context.WithoutCancel(ctx), ev); err != nil {
		log.Error("submit failed",
			slog.String("kind", string(ev.Kind())),
			slog.String("key", store.EventKey(ev)),
			slog.Any("err", err))
	}
}

func audit(log *slog.Logger, ev domain.Event) {
	switch e := ev.(type) {
	case domain.AddMessage:
		log.Info("message",
			slog.String("channel", e.Message.ChannelLogin),
			slog.String("sender", e.Message.SenderName),
			slog.String("text", e.Message.Text))
	case domain.DeleteMessage:
		log.Warn("message deleted", slog.String("message_id", e.MessageID.String()))
	case domain.BanUser:
		log.Warn("user banned",
			slog.String("channel", e.Record.ChannelLogin),
			slog.String("user", e.Record.UserLogin))
	case domain.SuspendUser:
		log.Warn("user timed out",
			slog.String("channel", e.Record.ChannelLogin),
			slog.String("user", e.Record.UserLogin),
			slog.String("duration", e.Record.Duration.String()))
	}
}
