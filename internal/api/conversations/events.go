package conversations

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguely/internal/api/apiutil"
)

// heartbeatInterval keeps idle streams alive through proxies.
var heartbeatInterval = 20 * time.Second

// HandleEvents handles GET /api/v1/conversations/{id}/events as a
// Server-Sent Events stream of message and read events.
func HandleEvents(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if chatService == nil {
		notInitialized(w, r)
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	conversationID, err := apiutil.PathID(r, conversationIDPathKey)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	sub, err := chatService.Subscribe(r.Context(), user.ID, conversationID)
	if err != nil {
		apiutil.WriteError(w, r, chatError(err, "Failed to subscribe"))
		return
	}
	defer chatService.Unsubscribe(sub)

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Error().Err(err).Msg("Streaming not supported by response writer")
		return
	}

	logger.Debug().Int64("user_id", user.ID).Int64("conversation_id", conversationID).Msg("Event stream opened")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				logger.Error().Err(err).Str("event", string(evt.Type)).Msg("Failed to encode chat event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
