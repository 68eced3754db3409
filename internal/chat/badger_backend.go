package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"

	pb "github.com/codr1/leaguely/proto/storage"
)

// Key layout:
//
//	conv:{conversation}                       conversation record
//	part:{user}:{conversation}                participant record with read mark
//	msg:{conversation}:{unix nanos}:{uuid}    message
//
// Numbers are zero padded to 19 digits so lexicographic key order matches
// numeric order, and the uuid breaks ties between messages created in the
// same nanosecond.
const (
	convPrefix = "conv:"
	partPrefix = "part:"
	msgPrefix  = "msg:"

	conversationSeqKey = "seq:conversation"
	maxKeyNanos        = "9999999999999999999"
)

// BadgerBackend stores chat data in an embedded BadgerDB key-value store.
type BadgerBackend struct {
	db    *badger.DB
	seq   *badger.Sequence
	owned bool
}

// OpenBadgerBackend opens (or creates) a store in dir. The backend owns the
// database and closes it on Close.
func OpenBadgerBackend(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log.Logger.With().Str("component", "badger").Logger()})
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	b, err := NewBadgerBackend(bdb)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// NewBadgerBackend wraps an already open database. The caller keeps ownership.
func NewBadgerBackend(bdb *badger.DB) (*BadgerBackend, error) {
	seq, err := bdb.GetSequence([]byte(conversationSeqKey), 64)
	if err != nil {
		return nil, fmt.Errorf("conversation sequence: %w", err)
	}
	return &BadgerBackend{db: bdb, seq: seq}, nil
}

// Close releases the id sequence and, if owned, the database.
func (b *BadgerBackend) Close() error {
	var errs []error
	if err := b.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if b.owned {
		if err := b.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close badger: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (b *BadgerBackend) CreateConversation(_ context.Context, conv Conversation) (Conversation, error) {
	n, err := b.seq.Next()
	if err != nil {
		return Conversation{}, fmt.Errorf("next conversation id: %w", err)
	}
	conv.ID = int64(n) + 1
	conv.ParticipantIDs = slices.Clone(conv.ParticipantIDs)

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := setProto(txn, convKey(conv.ID), fromConversation(conv)); err != nil {
			return err
		}
		for _, userID := range conv.ParticipantIDs {
			if err := setProto(txn, partKey(userID, conv.ID), &pb.Participant{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("store conversation: %w", err)
	}
	return conv, nil
}

func (b *BadgerBackend) ConversationsForUser(_ context.Context, userID int64) ([]ConversationSummary, error) {
	var summaries []ConversationSummary
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("%s%019d:", partPrefix, userID))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			convID, err := strconv.ParseInt(string(item.Key()[len(prefix):]), 10, 64)
			if err != nil {
				return fmt.Errorf("parse participant key %q: %w", item.Key(), err)
			}
			var part pb.Participant
			if err := item.Value(func(v []byte) error { return proto.Unmarshal(v, &part) }); err != nil {
				return fmt.Errorf("decode participant: %w", err)
			}

			var rec pb.Conversation
			if err := getProto(txn, convKey(convID), &rec); err != nil {
				return fmt.Errorf("load conversation %d: %w", convID, err)
			}

			summary := ConversationSummary{Conversation: toConversation(&rec)}
			last, err := lastMessageIn(txn, convID)
			if err != nil {
				return err
			}
			summary.LastMessage = last
			summary.UnreadCount, err = countUnread(txn, convID, userID, part.GetLastReadAt())
			if err != nil {
				return err
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	return summaries, nil
}

func (b *BadgerBackend) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(partKey(userID, conversationID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (b *BadgerBackend) InsertMessage(_ context.Context, msg Message) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(convKey(msg.ConversationID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrInvalidConversation
			}
			return err
		}
		return setProto(txn, msgKey(msg), fromMessage(msg))
	})
}

func (b *BadgerBackend) ListMessages(_ context.Context, conversationID int64, q MessageQuery) ([]Message, error) {
	var messages []Message
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := msgConvPrefix(conversationID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse seek lands on the greatest key <= seek. Keys created exactly
		// at Before carry a ":uuid" suffix and sort after it, so they are skipped.
		seek := append(slices.Clone(prefix), maxKeyNanos...)
		if !q.Before.IsZero() {
			seek = append(slices.Clone(prefix), fmt.Sprintf("%019d", q.Before.UnixNano())...)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if q.Limit > 0 && len(messages) == q.Limit {
				break
			}
			msg, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (b *BadgerBackend) MarkRead(_ context.Context, conversationID, userID int64, at time.Time) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := partKey(userID, conversationID)
		var part pb.Participant
		if err := getProto(txn, key, &part); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotParticipant
			}
			return err
		}
		if at.UnixNano() <= part.GetLastReadAt() {
			return nil
		}
		part.LastReadAt = at.UnixNano()
		return setProto(txn, key, &part)
	})
}

func (b *BadgerBackend) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var stale [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(msgPrefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			nanos, err := keyNanos(key)
			if err != nil {
				return err
			}
			if nanos < cutoff.UnixNano() {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan messages: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete message: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush purge: %w", err)
	}
	return int64(len(stale)), nil
}

func lastMessageIn(txn *badger.Txn, conversationID int64) (*Message, error) {
	prefix := msgConvPrefix(conversationID)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(append(slices.Clone(prefix), maxKeyNanos...))
	if !it.ValidForPrefix(prefix) {
		return nil, nil
	}
	msg, err := decodeMessage(it.Item())
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// countUnread counts messages after lastRead that userID did not send.
func countUnread(txn *badger.Txn, conversationID, userID, lastRead int64) (int, error) {
	prefix := msgConvPrefix(conversationID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	start := append(slices.Clone(prefix), fmt.Sprintf("%019d", lastRead+1)...)
	for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
		msg, err := decodeMessage(it.Item())
		if err != nil {
			return 0, err
		}
		if msg.SenderID != userID {
			count++
		}
	}
	return count, nil
}

func convKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%019d", convPrefix, id))
}

func partKey(userID, conversationID int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:%019d", partPrefix, userID, conversationID))
}

func msgConvPrefix(conversationID int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:", msgPrefix, conversationID))
}

func msgKey(msg Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%019d:%s", msgPrefix, msg.ConversationID, msg.CreatedAt.UnixNano(), msg.ID))
}

func keyNanos(key []byte) (int64, error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 4 {
		return 0, fmt.Errorf("malformed message key %q", key)
	}
	return strconv.ParseInt(parts[2], 10, 64)
}

func setProto(txn *badger.Txn, key []byte, m proto.Message) error {
	data, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getProto(txn *badger.Txn, key []byte, m proto.Message) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error { return proto.Unmarshal(data, m) })
}

func decodeMessage(item *badger.Item) (Message, error) {
	var rec pb.Message
	if err := item.Value(func(v []byte) error { return proto.Unmarshal(v, &rec) }); err != nil {
		return Message{}, fmt.Errorf("decode message %q: %w", item.Key(), err)
	}
	return toMessage(&rec)
}

func fromMessage(msg Message) *pb.Message {
	return &pb.Message{
		Id:             msg.ID.String(),
		ConversationId: msg.ConversationID,
		SenderId:       msg.SenderID,
		Kind:           string(msg.Kind),
		Body:           msg.Body,
		ImageUrl:       msg.ImageURL,
		CreatedAt:      msg.CreatedAt.UnixNano(),
	}
}

func toMessage(rec *pb.Message) (Message, error) {
	id, err := parseMessageID(rec.GetId())
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:             id,
		ConversationID: rec.GetConversationId(),
		SenderID:       rec.GetSenderId(),
		Kind:           MessageKind(rec.GetKind()),
		Body:           rec.GetBody(),
		ImageURL:       rec.GetImageUrl(),
		CreatedAt:      fromNanos(rec.GetCreatedAt()),
	}, nil
}

// Unlinked team and league ids are stored as zero.
func fromConversation(conv Conversation) *pb.Conversation {
	return &pb.Conversation{
		Id:             conv.ID,
		Kind:           string(conv.Kind),
		Title:          conv.Title,
		TeamId:         lo.FromPtr(conv.TeamID),
		LeagueId:       lo.FromPtr(conv.LeagueID),
		ParticipantIds: conv.ParticipantIDs,
		CreatedAt:      conv.CreatedAt.UnixNano(),
	}
}

func toConversation(rec *pb.Conversation) Conversation {
	return Conversation{
		ID:             rec.GetId(),
		Kind:           ConversationKind(rec.GetKind()),
		Title:          rec.GetTitle(),
		TeamID:         lo.EmptyableToPtr(rec.GetTeamId()),
		LeagueID:       lo.EmptyableToPtr(rec.GetLeagueId()),
		ParticipantIDs: slices.Clone(rec.GetParticipantIds()),
		CreatedAt:      fromNanos(rec.GetCreatedAt()),
	}
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	zl zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.zl.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.zl.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.zl.Trace().Msgf(strings.TrimSpace(format), args...)
}
