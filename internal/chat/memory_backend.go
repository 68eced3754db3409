package chat

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MemoryBackend keeps everything in process memory. It backs demo mode and tests.
type MemoryBackend struct {
	mu            sync.RWMutex
	nextID        int64
	conversations map[int64]Conversation
	readMarks     map[int64]map[int64]time.Time
	messages      map[int64][]Message
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		conversations: make(map[int64]Conversation),
		readMarks:     make(map[int64]map[int64]time.Time),
		messages:      make(map[int64][]Message),
	}
}

func (b *MemoryBackend) CreateConversation(_ context.Context, conv Conversation) (Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	conv.ID = b.nextID
	conv.ParticipantIDs = slices.Clone(conv.ParticipantIDs)
	b.conversations[conv.ID] = conv

	marks := make(map[int64]time.Time, len(conv.ParticipantIDs))
	for _, id := range conv.ParticipantIDs {
		marks[id] = time.Time{}
	}
	b.readMarks[conv.ID] = marks
	return conv, nil
}

func (b *MemoryBackend) ConversationsForUser(_ context.Context, userID int64) ([]ConversationSummary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []ConversationSummary
	for id, conv := range b.conversations {
		lastRead, ok := b.readMarks[id][userID]
		if !ok {
			continue
		}

		summary := ConversationSummary{Conversation: conv}
		summary.ParticipantIDs = slices.Clone(conv.ParticipantIDs)
		msgs := b.messages[id]
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			summary.LastMessage = &last
		}
		summary.UnreadCount = lo.CountBy(msgs, func(m Message) bool {
			return m.SenderID != userID && m.CreatedAt.After(lastRead)
		})
		out = append(out, summary)
	}
	return out, nil
}

func (b *MemoryBackend) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.readMarks[conversationID][userID]
	return ok, nil
}

func (b *MemoryBackend) InsertMessage(_ context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.conversations[msg.ConversationID]; !ok {
		return ErrInvalidConversation
	}
	msgs := append(b.messages[msg.ConversationID], msg)
	sort.SliceStable(msgs, func(i, j int) bool { return messageLess(msgs[i], msgs[j]) })
	b.messages[msg.ConversationID] = msgs
	return nil
}

func (b *MemoryBackend) ListMessages(_ context.Context, conversationID int64, q MessageQuery) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msgs := b.messages[conversationID]
	end := len(msgs)
	if !q.Before.IsZero() {
		end = sort.Search(len(msgs), func(i int) bool { return !msgs[i].CreatedAt.Before(q.Before) })
	}
	start := 0
	if q.Limit > 0 && end-q.Limit > start {
		start = end - q.Limit
	}
	return slices.Clone(msgs[start:end]), nil
}

func (b *MemoryBackend) MarkRead(_ context.Context, conversationID, userID int64, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	marks, ok := b.readMarks[conversationID]
	if !ok {
		return ErrNotParticipant
	}
	current, ok := marks[userID]
	if !ok {
		return ErrNotParticipant
	}
	if at.After(current) {
		marks[userID] = at
	}
	return nil
}

func (b *MemoryBackend) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var purged int64
	for id, msgs := range b.messages {
		kept := lo.Filter(msgs, func(m Message, _ int) bool { return !m.CreatedAt.Before(cutoff) })
		purged += int64(len(msgs) - len(kept))
		b.messages[id] = kept
	}
	return purged, nil
}

// NewDemoBackend returns a memory backend seeded with sample conversations
// between the demo directory users (ids 1-4).
func NewDemoBackend(now time.Time) (*MemoryBackend, error) {
	b := NewMemoryBackend()
	ctx := context.Background()
	now = now.UTC()

	teamID := int64(1)
	seed := []struct {
		conv     Conversation
		messages []Message
	}{
		{
			conv: Conversation{
				Kind:           ConversationTeam,
				Title:          "Hudson Hitters",
				TeamID:         &teamID,
				ParticipantIDs: []int64{1, 2, 3},
				CreatedAt:      now.Add(-72 * time.Hour),
			},
			messages: []Message{
				{SenderID: SystemSenderID, Kind: KindSystem, Body: "Conversation created", CreatedAt: now.Add(-72 * time.Hour)},
				{SenderID: 2, Kind: KindText, Body: "Practice moved to 7pm Thursday.", CreatedAt: now.Add(-26 * time.Hour)},
				{SenderID: 3, Kind: KindText, Body: "I'll bring the extra nets.", CreatedAt: now.Add(-25 * time.Hour)},
				{SenderID: 1, Kind: KindText, Body: "See everyone there!", CreatedAt: now.Add(-2 * time.Hour)},
			},
		},
		{
			conv: Conversation{
				Kind:           ConversationDirect,
				ParticipantIDs: []int64{1, 4},
				CreatedAt:      now.Add(-48 * time.Hour),
			},
			messages: []Message{
				{SenderID: 4, Kind: KindText, Body: "Are you still looking for a team this season?", CreatedAt: now.Add(-47 * time.Hour)},
				{SenderID: 1, Kind: KindText, Body: "Yes, weekday evenings work best.", CreatedAt: now.Add(-46 * time.Hour)},
			},
		},
	}

	for _, s := range seed {
		conv, err := b.CreateConversation(ctx, s.conv)
		if err != nil {
			return nil, fmt.Errorf("seed conversation %q: %w", s.conv.Title, err)
		}
		for _, m := range s.messages {
			m.ID = uuid.New()
			m.ConversationID = conv.ID
			if err := b.InsertMessage(ctx, m); err != nil {
				return nil, fmt.Errorf("seed message in conversation %d: %w", conv.ID, err)
			}
		}
	}
	return b, nil
}
