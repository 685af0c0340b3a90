package domain

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidID is wrapped by every identifier parse failure.
	ErrInvalidID = errors.New("invalid identifier")
	// ErrInvalidDuration is returned for a timeout without a positive length.
	ErrInvalidDuration = errors.New("invalid timeout duration")
)

// ParseError describes which wire field failed to parse.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrInvalidID, e.Err} }

// ParseUserID parses a decimal Twitch user or room id.
func ParseUserID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ParseError{Field: field, Value: raw, Err: err}
	}
	return id, nil
}

// ParseMessageID parses a Twitch message id (a UUID).
func ParseMessageID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &ParseError{Field: "message_id", Value: raw, Err: err}
	}
	return id, nil
}

// RawMessage carries the string fields of a chat message as received.
type RawMessage struct {
	ChannelID       string
	ChannelLogin    string
	SenderID        string
	SenderLogin     string
	SenderName      string
	MessageID       string
	Text            string
	ServerTimestamp time.Time
}

// RawModeration carries the string fields of a ban or timeout as received.
type RawModeration struct {
	ChannelID       string
	ChannelLogin    string
	UserID          string
	UserLogin       string
	ServerTimestamp time.Time
}

// NewAddMessage validates raw and returns an AddMessage event.
func NewAddMessage(raw RawMessage) (Event, error) {
	channelID, err := ParseUserID("channel_id", raw.ChannelID)
	if err != nil {
		return nil, err
	}
	senderID, err := ParseUserID("sender_id", raw.SenderID)
	if err != nil {
		return nil, err
	}
	messageID, err := ParseMessageID(raw.MessageID)
	if err != nil {
		return nil, err
	}
	return AddMessage{Message: ChatMessage{
		ChannelID:       channelID,
		ChannelLogin:    raw.ChannelLogin,
		SenderID:        senderID,
		SenderLogin:     raw.SenderLogin,
		SenderName:      raw.SenderName,
		MessageID:       messageID,
		Text:            raw.Text,
		ServerTimestamp: raw.ServerTimestamp.UTC(),
	}}, nil
}

// NewDeleteMessage validates the message id and returns a DeleteMessage event.
func NewDeleteMessage(rawID string) (Event, error) {
	id, err := ParseMessageID(rawID)
	if err != nil {
		return nil, err
	}
	return DeleteMessage{DeleteDirective{MessageID: id}}, nil
}

// NewBan returns a BanUser event.
func NewBan(raw RawModeration) (Event, error) {
	rec, err := newModerationRecord(raw)
	if err != nil {
		return nil, err
	}
	return BanUser{Record: rec}, nil
}

// NewSuspend returns a SuspendUser event for a timeout of length d.
func NewSuspend(raw RawModeration, d time.Duration) (Event, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, d)
	}
	rec, err := newModerationRecord(raw)
	if err != nil {
		return nil, err
	}
	rec.Duration = d
	return SuspendUser{Record: rec}, nil
}

func newModerationRecord(raw RawModeration) (ModerationRecord, error) {
	channelID, err := ParseUserID("channel_id", raw.ChannelID)
	if err != nil {
		return ModerationRecord{}, err
	}
	userID, err := ParseUserID("user_id", raw.UserID)
	if err != nil {
		return ModerationRecord{}, err
	}
	return ModerationRecord{
		ChannelID:       channelID,
		ChannelLogin:    raw.ChannelLogin,
		UserID:          userID,
		UserLogin:       raw.UserLogin,
		ServerTimestamp: raw.ServerTimestamp.UTC(),
	}, nil
}
