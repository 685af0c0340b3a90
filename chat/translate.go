package chat

import (
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/twirc/domain"
)

// Translate maps a decoded protocol message to a domain event. Messages that
// carry nothing to record (joins, notices, whole-chat clears) yield a nil
// event and a nil error.
func Translate(msg twitch.Message) (domain.Event, error) {
	switch m := msg.(type) {
	case *twitch.PrivateMessage:
		return domain.NewAddMessage(domain.RawMessage{
			ChannelID:       m.RoomID,
			ChannelLogin:    m.Channel,
			SenderID:        m.User.ID,
			SenderLogin:     m.User.Name,
			SenderName:      m.User.DisplayName,
			MessageID:       m.ID,
			Text:            m.Message,
			ServerTimestamp: m.Time,
		})
	case *twitch.ClearChatMessage:
		if m.TargetUserID == "" {
			return nil, nil
		}
		raw := domain.RawModeration{
			ChannelID:       m.RoomID,
			ChannelLogin:    m.Channel,
			UserID:          m.TargetUserID,
			UserLogin:       m.TargetUsername,
			ServerTimestamp: m.Time,
		}
		if m.BanDuration == 0 {
			return domain.NewBan(raw)
		}
		return domain.NewSuspend(raw, time.Duration(m.BanDuration)*time.Second)
	case *twitch.ClearMessage:
		return domain.NewDeleteMessage(m.TargetMsgID)
	default:
		return nil, nil
	}
}
