package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Session is one chat connection. Messages yields decoded protocol messages
// until the session is closed; Errors yields at most one transport failure.
type Session interface {
	Join(channels ...string)
	Messages() <-chan twitch.Message
	Errors() <-chan error
	Close() error
}

// TwitchOptions configures NewTwitchSession. Without both Username and
// OAuthToken the session logs in anonymously (read-only).
type TwitchOptions struct {
	Username   string
	OAuthToken string
	// Address overrides the Twitch IRC server. The connection to it is
	// plain TCP.
	Address string
	Logger  *slog.Logger
}

// TwitchSession is a Session backed by go-twitch-irc.
//
// The client's handlers run on its parser goroutine, which also answers
// PINGs and reads PONGs. They only append to pending, so a listener waiting
// on the store never holds up keep-alives; a pump goroutine feeds msgs.
type TwitchSession struct {
	client *twitch.Client
	msgs   chan twitch.Message
	errs   chan error
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger

	mu      sync.Mutex
	pending []twitch.Message
	wake    chan struct{}
}

var _ Session = (*TwitchSession)(nil)

// NewTwitchSession registers the message handlers and starts connecting in
// the background. Connection failures are reported on Errors.
func NewTwitchSession(ctx context.Context, opts TwitchOptions) *TwitchSession {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var client *twitch.Client
	if opts.Username != "" && opts.OAuthToken != "" {
		client = twitch.NewClient(opts.Username, opts.OAuthToken)
	} else {
		client = twitch.NewAnonymousClient()
	}
	if opts.Address != "" {
		client.IrcAddress = opts.Address
		client.TLS = false
	}

	s := &TwitchSession{
		client: client,
		msgs:   make(chan twitch.Message),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
		log:    log,
	}
	client.OnPrivateMessage(func(m twitch.PrivateMessage) { s.push(&m) })
	client.OnClearChatMessage(func(m twitch.ClearChatMessage) { s.push(&m) })
	client.OnClearMessage(func(m twitch.ClearMessage) { s.push(&m) })
	client.OnConnect(func() {
		select {
		case <-s.done:
			// Closed while the welcome was in flight; Disconnect was a no-op then.
			_ = client.Disconnect()
			return
		default:
		}
		log.Info("twitch chat connected")
	})

	go s.pump()
	go func() {
		err := client.Connect()
		select {
		case <-s.done:
			return
		default:
		}
		if err == nil {
			err = errors.New("connection closed by server")
		}
		s.errs <- err
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s
}

func (s *TwitchSession) push(m twitch.Message) {
	s.mu.Lock()
	s.pending = append(s.pending, m)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *TwitchSession) pump() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		m := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.msgs <- m:
		case <-s.done:
			return
		}
	}
}

// Join joins the given channels; it may be called before the connection is up.
func (s *TwitchSession) Join(channels ...string) { s.client.Join(channels...) }

func (s *TwitchSession) Messages() <-chan twitch.Message { return s.msgs }

func (s *TwitchSession) Errors() <-chan error { return s.errs }

// Close disconnects the client. It is safe to call more than once.
func (s *TwitchSession) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.client.Disconnect()
		if errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			err = nil
		}
	})
	return err
}
