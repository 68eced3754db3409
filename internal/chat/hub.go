package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub broadcasts conversation events to in-process subscribers.
//
// Delivery is best effort: a subscriber whose buffer is full misses the event
// and publishers never block. Hub is safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[int64]map[*Subscription]struct{}
	buffer int
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[int64]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription receives events for one conversation until closed.
type Subscription struct {
	ConversationID int64
	UserID         int64

	hub    *Hub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events returns the event stream. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// Subscribe registers a subscriber for conversationID. The subscription is
// closed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, conversationID, userID int64) *Subscription {
	sub := &Subscription{
		ConversationID: conversationID,
		UserID:         userID,
		hub:            h,
		events:         make(chan Event, h.buffer),
		done:           make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[conversationID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub
}

// Publish delivers evt to every subscriber of its conversation and reports
// how many received it and how many were skipped because their buffer was full.
func (h *Hub) Publish(ctx context.Context, evt Event) (delivered, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[evt.ConversationID] {
		select {
		case sub.events <- evt:
			delivered++
		default:
			dropped++
			log.Ctx(ctx).Warn().
				Int64("conversation_id", evt.ConversationID).
				Int64("user_id", sub.UserID).
				Str("event", string(evt.Type)).
				Msg("Chat subscriber buffer full, event dropped")
		}
	}
	return delivered, dropped
}

// SubscriberCount returns the number of live subscriptions for a conversation.
func (h *Hub) SubscriberCount(conversationID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[conversationID])
}

// remove unregisters sub and closes its event channel. Holding the lock while
// closing keeps Publish from sending on a closed channel.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[sub.ConversationID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.ConversationID)
		}
	}
	close(sub.events)
}
