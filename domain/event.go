// Package domain holds the normalized chat records and the closed set of
// events flowing from the listeners to the store actor.
//
// Events are built from raw protocol fields with the New* constructors, which
// parse the numeric and message identifiers Twitch sends as strings. A parse
// failure is returned as a *ParseError and only affects that one event.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind names an event variant. It is used as a metric label and log field.
type Kind string

const (
	KindAdd     Kind = "add"
	KindDelete  Kind = "delete"
	KindBan     Kind = "ban"
	KindSuspend Kind = "suspend"
	KindStop    Kind = "stop"
)

// ChatMessage is one observed chat line. Only Deleted changes after creation.
type ChatMessage struct {
	ChannelID       int64     `json:"channel_id"`
	ChannelLogin    string    `json:"channel_login"`
	SenderID        int64     `json:"sender_id"`
	SenderLogin     string    `json:"sender_login"`
	SenderName      string    `json:"sender_name"`
	MessageID       uuid.UUID `json:"message_id"`
	Text            string    `json:"message_text"`
	ServerTimestamp time.Time `json:"server_timestamp"`
	Deleted         bool      `json:"deleted"`
}

// ModerationRecord is a ban or timeout of a user in a channel. It is applied
// to every message the user sent in that channel so far.
type ModerationRecord struct {
	ChannelID       int64     `json:"channel_id"`
	ChannelLogin    string    `json:"channel_login"`
	UserID          int64     `json:"user_id"`
	UserLogin       string    `json:"user_login"`
	ServerTimestamp time.Time `json:"server_timestamp"`
	// Duration is the timeout length; zero means a permanent ban.
	Duration time.Duration `json:"duration"`
}

// Permanent reports whether the record is a ban rather than a timeout.
func (r ModerationRecord) Permanent() bool { return r.Duration <= 0 }

// Kind returns KindBan or KindSuspend.
func (r ModerationRecord) Kind() Kind {
	if r.Permanent() {
		return KindBan
	}
	return KindSuspend
}

// DeleteDirective references a single message by id.
type DeleteDirective struct {
	MessageID uuid.UUID `json:"message_id"`
}

// Event is one of AddMessage, DeleteMessage, BanUser, SuspendUser or Stop.
type Event interface {
	Kind() Kind
	event()
}

// AddMessage records a new chat message.
type AddMessage struct{ Message ChatMessage }

// DeleteMessage soft-deletes one message.
type DeleteMessage struct{ DeleteDirective }

// BanUser permanently bans a user and soft-deletes their messages.
type BanUser struct{ Record ModerationRecord }

// SuspendUser times out a user and soft-deletes their messages.
type SuspendUser struct{ Record ModerationRecord }

// Stop terminates the store actor loop. It carries no data.
type Stop struct{}

func (AddMessage) Kind() Kind    { return KindAdd }
func (DeleteMessage) Kind() Kind { return KindDelete }
func (BanUser) Kind() Kind       { return KindBan }
func (SuspendUser) Kind() Kind   { return KindSuspend }
func (Stop) Kind() Kind          { return KindStop }

func (AddMessage) event()    {}
func (DeleteMessage) event() {}
func (BanUser) event()       {}
func (SuspendUser) event()   {}
func (Stop) event()          {}
