package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Clock lets tests control message timestamps.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Options struct {
	MaxMessageLength int
	PageSize         int
	SubscriberBuffer int
	Clock            Clock
}

// Service is the chat facade used by the API layer.
type Service struct {
	backend Backend
	hub     *Hub
	opts    Options
	clock   Clock
}

func NewService(backend Backend, opts Options) *Service {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 4000
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.PageSize > MaxPageSize {
		opts.PageSize = MaxPageSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Service{
		backend: backend,
		hub:     NewHub(opts.SubscriberBuffer),
		opts:    opts,
		clock:   clock,
	}
}

// ListConversations returns the user's conversations, most recent activity first.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	summaries, err := s.backend.ConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		ai, aj := summaries[i].LastActivityAt(), summaries[j].LastActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return summaries[i].ID > summaries[j].ID
	})
	return summaries, nil
}

// ListMessages returns a page of history, oldest first.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID int64, q MessageQuery) ([]Message, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if q.Limit <= 0 {
		q.Limit = s.opts.PageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}

	messages, err := s.backend.ListMessages(ctx, conversationID, q)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// SendText posts a text message from userID.
func (s *Service) SendText(ctx context.Context, userID, conversationID int64, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	if err := s.checkLength(body); err != nil {
		return Message{}, err
	}
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return Message{}, err
	}

	return s.store(ctx, Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Kind:           KindText,
		Body:           body,
	})
}

// SendImage posts an image message with an optional caption.
func (s *Service) SendImage(ctx context.Context, userID, conversationID int64, imageURL, caption string) (Message, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return Message{}, ErrMissingImage
	}
	caption = strings.TrimSpace(caption)
	if err := s.checkLength(caption); err != nil {
		return Message{}, err
	}
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return Message{}, err
	}

	return s.store(ctx, Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Kind:           KindImage,
		Body:           caption,
		ImageURL:       imageURL,
	})
}

// SendSystem posts an app-generated message. No participant check applies.
func (s *Service) SendSystem(ctx context.Context, conversationID int64, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	if err := s.checkLength(body); err != nil {
		return Message{}, err
	}

	return s.store(ctx, Message{
		ConversationID: conversationID,
		SenderID:       SystemSenderID,
		Kind:           KindSystem,
		Body:           body,
	})
}

// CreateConversation stores a conversation that always includes the creator
// and announces it with a system message.
func (s *Service) CreateConversation(ctx context.Context, creatorID int64, nc NewConversation) (Conversation, error) {
	switch nc.Kind {
	case ConversationDirect, ConversationTeam, ConversationLeague:
	default:
		return Conversation{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidConversation, nc.Kind)
	}
	if creatorID <= 0 {
		return Conversation{}, fmt.Errorf("%w: creator is required", ErrInvalidConversation)
	}
	if nc.Kind == ConversationTeam && nc.TeamID == nil {
		return Conversation{}, fmt.Errorf("%w: team conversations need a team", ErrInvalidConversation)
	}
	if nc.Kind == ConversationLeague && nc.LeagueID == nil {
		return Conversation{}, fmt.Errorf("%w: league conversations need a league", ErrInvalidConversation)
	}

	participants := lo.Uniq(append([]int64{creatorID}, lo.Filter(nc.ParticipantIDs, func(id int64, _ int) bool {
		return id > 0
	})...))
	if nc.Kind == ConversationDirect && len(participants) < 2 {
		return Conversation{}, fmt.Errorf("%w: direct conversations need two participants", ErrInvalidConversation)
	}

	conv, err := s.backend.CreateConversation(ctx, Conversation{
		Kind:           nc.Kind,
		Title:          strings.TrimSpace(nc.Title),
		TeamID:         nc.TeamID,
		LeagueID:       nc.LeagueID,
		ParticipantIDs: participants,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	if _, err := s.SendSystem(ctx, conv.ID, "Conversation created"); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("conversation_id", conv.ID).Msg("Failed to post conversation created message")
	}

	log.Ctx(ctx).Info().
		Int64("conversation_id", conv.ID).
		Str("kind", string(conv.Kind)).
		Int("participants", len(conv.ParticipantIDs)).
		Msg("Conversation created")
	return conv, nil
}

// Subscribe starts a live update stream for a participant. The subscription
// ends when ctx is done or Unsubscribe is called.
func (s *Service) Subscribe(ctx context.Context, userID, conversationID int64) (*Subscription, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	sub := s.hub.Subscribe(ctx, conversationID, userID)
	log.Ctx(ctx).Debug().
		Int64("conversation_id", conversationID).
		Int64("user_id", userID).
		Int("subscribers", s.hub.SubscriberCount(conversationID)).
		Msg("Chat subscription started")
	return sub, nil
}

// Unsubscribe ends a subscription. Nil and already closed subscriptions are ignored.
func (s *Service) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.Close()
}

// MarkRead records that userID has read the conversation up to now.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID int64) error {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	at := s.now()
	if err := s.backend.MarkRead(ctx, conversationID, userID, at); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	s.hub.Publish(ctx, Event{
		Type:           EventRead,
		ConversationID: conversationID,
		ReaderID:       userID,
		ReadAt:         &at,
	})
	return nil
}

// PurgeBefore deletes messages older than cutoff.
func (s *Service) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.backend.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	return n, nil
}

func (s *Service) store(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.New()
	msg.CreatedAt = s.now()

	if err := s.backend.InsertMessage(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	stored := msg
	s.hub.Publish(ctx, Event{
		Type:           EventMessage,
		ConversationID: msg.ConversationID,
		Message:        &stored,
	})
	return msg, nil
}

// CheckParticipant returns ErrNotParticipant unless userID belongs to the
// conversation. Unknown conversations report the same error.
func (s *Service) CheckParticipant(ctx context.Context, userID, conversationID int64) error {
	return s.requireParticipant(ctx, conversationID, userID)
}

// CheckCaption reports whether caption fits the message length limit.
func (s *Service) CheckCaption(caption string) error {
	return s.checkLength(strings.TrimSpace(caption))
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID int64) error {
	ok, err := s.backend.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func (s *Service) checkLength(body string) error {
	if utf8.RuneCountInString(body) > s.opts.MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}
