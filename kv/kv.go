// Package kv is the embedded store.Backend built on BadgerDB.
//
// Two logical tables share one keyspace, separated by prefix:
//
//	messages/<16-byte message uuid>                 -> JSON domain.ChatMessage
//	history/<8-byte sortable unix nanos>            -> JSON domain.ModerationRecord
//	senders/<channel><user><16-byte message uuid>   -> empty (index for moderation)
//
// Integers in keys are big-endian with the sign bit flipped so that byte order
// matches numeric order. Every apply runs in a single read-write transaction.
package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/onnwee/twirc/domain"
	"github.com/onnwee/twirc/store"
)

var (
	messagesPrefix = []byte("messages/")
	historyPrefix  = []byte("history/")
	sendersPrefix  = []byte("senders/")
)

// Options configures Open.
type Options struct {
	// Dir is the database directory; created if missing. Ignored when InMemory.
	Dir        string
	InMemory   bool
	SyncWrites bool
	ReadOnly   bool
	// BypassLock lets a read-only inspector open a directory held by a running
	// writer.
	BypassLock bool
	Logger     *slog.Logger
}

// DefaultDir is <tmp>/twirc.
func DefaultDir() string { return filepath.Join(os.TempDir(), "twirc") }

// Store is a Badger-backed store.Backend.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

var (
	_ store.Backend = (*Store)(nil)
	_ store.Flusher = (*Store)(nil)
)

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "kv"))

	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = DefaultDir()
		}
		if !opts.ReadOnly {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create badger dir: %w", err)
			}
		}
		bo = badger.DefaultOptions(dir).
			WithReadOnly(opts.ReadOnly).
			WithBypassLockGuard(opts.BypassLock)
	}
	bo = bo.WithSyncWrites(opts.SyncWrites).WithLogger(badgerLogger{log})

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	log.Info("badger store opened", slog.String("dir", bo.Dir), slog.Bool("in_memory", opts.InMemory))
	return &Store{db: db, log: log}, nil
}

// ApplyAdd stores msg. An existing id is rejected with store.ErrDuplicate and
// the stored record is left untouched.
func (s *Store) ApplyAdd(_ context.Context, msg domain.ChatMessage) error {
	val, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	key := messageKey(msg.MessageID)
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return store.ErrDuplicate
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(senderKey(msg.ChannelID, msg.SenderID, msg.MessageID), []byte{})
	})
}

// ApplyDelete marks the message deleted. Deleting twice is a no-op.
func (s *Store) ApplyDelete(_ context.Context, id uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return markDeleted(txn, messageKey(id))
	})
}

// ApplyModeration marks every message of the user in the channel deleted and
// appends rec to the history table.
func (s *Store) ApplyModeration(_ context.Context, rec domain.ModerationRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode moderation record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		ids, err := senderMessages(txn, rec.ChannelID, rec.UserID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := markDeleted(txn, messageKey(id)); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		// Same-instant records get the next free nanosecond.
		nanos := rec.ServerTimestamp.UnixNano()
		for {
			_, err := txn.Get(historyKey(nanos))
			if errors.Is(err, badger.ErrKeyNotFound) {
				break
			}
			if err != nil {
				return err
			}
			nanos++
		}
		return txn.Set(historyKey(nanos), val)
	})
}

// Flush syncs the value log to disk.
func (s *Store) Flush() error { return s.db.Sync() }

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Message returns one stored message.
func (s *Store) Message(id uuid.UUID) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &msg) })
	})
	return msg, err
}

// Messages calls fn for every stored message in key order.
func (s *Store) Messages(fn func(domain.ChatMessage) error) error {
	return s.scan(messagesPrefix, func(v []byte) error {
		var msg domain.ChatMessage
		if err := json.Unmarshal(v, &msg); err != nil {
			return err
		}
		return fn(msg)
	})
}

// History calls fn for every moderation record, oldest first.
func (s *Store) History(fn func(domain.ModerationRecord) error) error {
	return s.scan(historyPrefix, func(v []byte) error {
		var rec domain.ModerationRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		return fn(rec)
	})
}

func (s *Store) scan(prefix []byte, fn func([]byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func markDeleted(txn *badger.Txn, key []byte) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	var msg domain.ChatMessage
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &msg) }); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if msg.Deleted {
		return nil
	}
	msg.Deleted = true
	val, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return txn.Set(key, val)
}

func senderMessages(txn *badger.Txn, channelID, userID int64) ([]uuid.UUID, error) {
	prefix := senderPrefix(channelID, userID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uuid.UUID
	for it.Rewind(); it.Valid(); it.Next() {
		id, err := uuid.FromBytes(it.Item().Key()[len(prefix):])
		if err != nil {
			return nil, fmt.Errorf("corrupt sender index key: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func messageKey(id uuid.UUID) []byte {
	return append(append(make([]byte, 0, len(messagesPrefix)+16), messagesPrefix...), id[:]...)
}

func historyKey(nanos int64) []byte {
	return appendInt(append(make([]byte, 0, len(historyPrefix)+8), historyPrefix...), nanos)
}

func senderPrefix(channelID, userID int64) []byte {
	k := append(make([]byte, 0, len(sendersPrefix)+32), sendersPrefix...)
	return appendInt(appendInt(k, channelID), userID)
}

func senderKey(channelID, userID int64, id uuid.UUID) []byte {
	return append(senderPrefix(channelID, userID), id[:]...)
}

func appendInt(b []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v)^(1<<63))
}

// badgerLogger routes Badger's internal logging through slog.
type badgerLogger struct{ log *slog.Logger }

func (l badgerLogger) Errorf(f string, v ...interface{}) { l.log.Error(fmt.Sprintf(f, v...)) }
func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(f, v...))
}
func (l badgerLogger) Infof(f string, v ...interface{})  { l.log.Debug(fmt.Sprintf(f, v...)) }
func (l badgerLogger) Debugf(f string, v ...interface{}) { l.log.Debug(fmt.Sprintf(f, v...)) }
