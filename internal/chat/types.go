// Package chat provides conversation lists, message history, sending, read
// receipts and live updates over a pluggable storage backend.
package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindSystem MessageKind = "system"
)

type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationTeam   ConversationKind = "team"
	ConversationLeague ConversationKind = "league"
)

// SystemSenderID marks messages generated by the app rather than a user.
const SystemSenderID int64 = 0

// MaxPageSize caps the number of messages returned by one history request.
const MaxPageSize = 200

var (
	ErrNotParticipant      = errors.New("user is not a participant of the conversation")
	ErrEmptyMessage        = errors.New("message body is required")
	ErrMessageTooLong      = errors.New("message body is too long")
	ErrMissingImage        = errors.New("image url is required")
	ErrInvalidConversation = errors.New("invalid conversation")
)

type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID int64       `json:"conversationId"`
	SenderID       int64       `json:"senderId"`
	Kind           MessageKind `json:"kind"`
	Body           string      `json:"body"`
	ImageURL       string      `json:"imageUrl,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type Conversation struct {
	ID             int64            `json:"id"`
	Kind           ConversationKind `json:"kind"`
	Title          string           `json:"title"`
	TeamID         *int64           `json:"teamId,omitempty"`
	LeagueID       *int64           `json:"leagueId,omitempty"`
	ParticipantIDs []int64          `json:"participantIds"`
	CreatedAt      time.Time        `json:"createdAt"`
}

type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}

// LastActivityAt is the time of the newest message, or the creation time of
// an empty conversation.
func (s ConversationSummary) LastActivityAt() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}

type NewConversation struct {
	Kind           ConversationKind
	Title          string
	TeamID         *int64
	LeagueID       *int64
	ParticipantIDs []int64
}

// MessageQuery selects a page of history: the newest Limit messages created
// strictly before Before. A zero Before means no upper bound.
type MessageQuery struct {
	Before time.Time
	Limit  int
}

type EventType string

const (
	EventMessage EventType = "message"
	EventRead    EventType = "read"
)

type Event struct {
	Type           EventType  `json:"type"`
	ConversationID int64      `json:"conversationId"`
	Message        *Message   `json:"message,omitempty"`
	ReaderID       int64      `json:"readerId,omitempty"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// UnreadDigest is one user's unread message summary for email notification.
type UnreadDigest struct {
	UserID        int64
	Name          string
	Email         string
	Unread        int
	Conversations []string
	Newest        time.Time
}
