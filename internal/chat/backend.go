package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Backend persists conversations, messages and read marks. It owns durability
// and ordering of writes; Service owns validation and live fan-out.
type Backend interface {
	// CreateConversation stores conv and returns it with its assigned ID.
	CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
	// ConversationsForUser returns summaries for every conversation userID
	// participates in, in no particular order.
	ConversationsForUser(ctx context.Context, userID int64) ([]ConversationSummary, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	InsertMessage(ctx context.Context, msg Message) error
	// ListMessages returns the page selected by q, oldest first.
	ListMessages(ctx context.Context, conversationID int64, q MessageQuery) ([]Message, error)
	// MarkRead moves the user's read mark forward to at. It never moves it back.
	MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error
	// PurgeBefore deletes messages created before cutoff and returns the count.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DigestSource is implemented by backends that can report unread messages per
// user for email digests.
type DigestSource interface {
	UnreadDigests(ctx context.Context) ([]UnreadDigest, error)
	MarkDigestSent(ctx context.Context, userID int64, at time.Time) error
}

// messageLess orders messages by creation time, then id.
func messageLess(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func parseMessageID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse message id %q: %w", id, err)
	}
	return parsed, nil
}
