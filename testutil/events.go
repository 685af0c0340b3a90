package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/twirc/domain"
)

// Add builds an AddMessage for channel/sender with a fresh message id.
func Add(channelID, senderID int64, text string) domain.AddMessage {
	return AddWithID(uuid.New(), channelID, senderID, text)
}

// AddWithID builds an AddMessage with a fixed message id.
func AddWithID(id uuid.UUID, channelID, senderID int64, text string) domain.AddMessage {
	return domain.AddMessage{Message: domain.ChatMessage{
		ChannelID:       channelID,
		ChannelLogin:    "channel",
		SenderID:        senderID,
		SenderLogin:     "sender",
		SenderName:      "Sender",
		MessageID:       id,
		Text:            text,
		ServerTimestamp: time.Now().UTC().Truncate(time.Microsecond),
	}}
}

// Moderation builds a moderation record; d == 0 is a permanent ban.
func Moderation(channelID, userID int64, d time.Duration) domain.ModerationRecord {
	return domain.ModerationRecord{
		ChannelID:       channelID,
		ChannelLogin:    "channel",
		UserID:          userID,
		UserLogin:       "user",
		ServerTimestamp: time.Now().UTC().Truncate(time.Microsecond),
		Duration:        d,
	}
}
