package kv

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/twirc/domain"
	"github.com/onnwee/twirc/store"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func message(channelID, senderID int64) domain.ChatMessage {
	return domain.ChatMessage{
		ChannelID:       channelID,
		ChannelLogin:    "channel",
		SenderID:        senderID,
		SenderLogin:     "sender",
		SenderName:      "Sender",
		MessageID:       uuid.New(),
		Text:            "hello",
		ServerTimestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func allMessages(t *testing.T, s *Store) []domain.ChatMessage {
	t.Helper()
	var out []domain.ChatMessage
	require.NoError(t, s.Messages(func(m domain.ChatMessage) error {
		out = append(out, m)
		return nil
	}))
	return out
}

func allHistory(t *testing.T, s *Store) []domain.ModerationRecord {
	t.Helper()
	var out []domain.ModerationRecord
	require.NoError(t, s.History(func(r domain.ModerationRecord) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func TestAddAndRead(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	msg := message(1, 7)

	require.NoError(t, s.ApplyAdd(ctx, msg))
	got, err := s.Message(msg.MessageID)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestAddDuplicateKeepsOriginal(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	msg := message(1, 7)
	require.NoError(t, s.ApplyAdd(ctx, msg))

	dup := msg
	dup.Text = "rewritten"
	require.ErrorIs(t, s.ApplyAdd(ctx, dup), store.ErrDuplicate)

	got, err := s.Message(msg.MessageID)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Text)
}

func TestDelete(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	target, other := message(1, 7), message(1, 7)
	require.NoError(t, s.ApplyAdd(ctx, target))
	require.NoError(t, s.ApplyAdd(ctx, other))

	require.NoError(t, s.ApplyDelete(ctx, target.MessageID))
	before := allMessages(t, s)
	require.NoError(t, s.ApplyDelete(ctx, target.MessageID))
	require.Equal(t, before, allMessages(t, s))

	got, _ := s.Message(target.MessageID)
	require.True(t, got.Deleted)
	got, _ = s.Message(other.MessageID)
	require.False(t, got.Deleted)
}

func TestDeleteUnknown(t *testing.T) {
	s := openTest(t)
	id := uuid.New()
	require.ErrorIs(t, s.ApplyDelete(context.Background(), id), store.ErrNotFound)
	_, err := s.Message(id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, allMessages(t, s))
}

func TestModerationMarksOnlyThePair(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	var target []domain.ChatMessage
	for i := 0; i < 3; i++ {
		m := message(1, 7)
		target = append(target, m)
		require.NoError(t, s.ApplyAdd(ctx, m))
	}
	otherChannel, otherUser := message(2, 7), message(1, 8)
	require.NoError(t, s.ApplyAdd(ctx, otherChannel))
	require.NoError(t, s.ApplyAdd(ctx, otherUser))

	rec := domain.ModerationRecord{ChannelID: 1, UserID: 7, UserLogin: "troll", ServerTimestamp: time.Now().UTC()}
	require.NoError(t, s.ApplyModeration(ctx, rec))

	for _, m := range target {
		got, _ := s.Message(m.MessageID)
		require.True(t, got.Deleted)
	}
	for _, m := range []domain.ChatMessage{otherChannel, otherUser} {
		got, _ := s.Message(m.MessageID)
		require.False(t, got.Deleted)
	}
	history := allHistory(t, s)
	require.Len(t, history, 1)
	require.True(t, history[0].Permanent())
	require.Equal(t, int64(7), history[0].UserID)
}

func TestModerationWithoutMessagesStillRecorded(t *testing.T) {
	s := openTest(t)
	rec := domain.ModerationRecord{ChannelID: 1, UserID: 9, ServerTimestamp: time.Now().UTC(), Duration: 30 * time.Second}
	require.NoError(t, s.ApplyModeration(context.Background(), rec))

	history := allHistory(t, s)
	require.Len(t, history, 1)
	require.Equal(t, 30*time.Second, history[0].Duration)
}

func TestHistorySameInstantAndOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.ApplyModeration(ctx, domain.ModerationRecord{ChannelID: 1, UserID: 3, ServerTimestamp: at.Add(time.Second)}))
	require.NoError(t, s.ApplyModeration(ctx, domain.ModerationRecord{ChannelID: 1, UserID: 1, ServerTimestamp: at}))
	require.NoError(t, s.ApplyModeration(ctx, domain.ModerationRecord{ChannelID: 1, UserID: 2, ServerTimestamp: at, Duration: time.Minute}))

	history := allHistory(t, s)
	require.Len(t, history, 3)
	require.Equal(t, []int64{1, 2, 3}, []int64{history[0].UserID, history[1].UserID, history[2].UserID})
}

func TestKeyEncodingSorts(t *testing.T) {
	require.Negative(t, bytes.Compare(historyKey(-5), historyKey(3)))
	require.Negative(t, bytes.Compare(historyKey(3), historyKey(1<<40)))
	require.True(t, bytes.HasPrefix(senderKey(1, 2, uuid.New()), senderPrefix(1, 2)))
	require.False(t, bytes.HasPrefix(senderKey(1, 20, uuid.New()), senderPrefix(1, 2)))
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	msg := message(1, 1)
	require.NoError(t, s.ApplyAdd(context.Background(), msg))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir, ReadOnly: true})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Message(msg.MessageID)
	require.NoError(t, err)
	require.Equal(t, msg.MessageID, got.MessageID)
}
