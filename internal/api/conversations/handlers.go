// internal/api/conversations/handlers.go
package conversations

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguely/internal/api/apiutil"
	"github.com/codr1/leaguely/internal/chat"
	"github.com/codr1/leaguely/internal/directory"
	"github.com/codr1/leaguely/internal/media"
	"github.com/codr1/leaguely/internal/ratelimit"
)

const (
	chatQueryTimeout      = 5 * time.Second
	conversationIDPathKey = "id"
	mediaFilePathKey      = "file"
)

var (
	chatService *chat.Service
	users       directory.Repository
	mediaStore  *media.DiskStore
	limiter     *ratelimit.Limiter
)

type createConversationRequest struct {
	Kind           string  `json:"kind" validate:"required,oneof=direct team league"`
	Title          string  `json:"title" validate:"max=120"`
	TeamID         *int64  `json:"teamId" validate:"omitempty,gt=0"`
	LeagueID       *int64  `json:"leagueId" validate:"omitempty,gt=0"`
	ParticipantIDs []int64 `json:"participantIds" validate:"max=100,dive,gt=0"`
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

type conversationResponse struct {
	chat.ConversationSummary
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *chat.Service, repo directory.Repository, store *media.DiskStore, rl *ratelimit.Limiter) {
	chatService = svc
	users = repo
	mediaStore = store
	limiter = rl
}

// HandleListConversations handles GET /api/v1/conversations.
func HandleListConversations(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if chatService == nil {
		notInitialized(w, r)
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	summaries, err := chatService.ListConversations(ctx, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, chatError(err, "Failed to load conversations"))
		return
	}

	resp := make([]conversationResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, conversationResponse{ConversationSummary: s, LastActivityAt: s.LastActivityAt()})
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"conversations": resp}); err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to write conversations response")
	}
}

// HandleCreateConversation handles POST /api/v1/conversations.
func HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if chatService == nil || users == nil {
		notInitialized(w, r)
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req createConversationRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	if err := apiutil.Validate(r.Context(), req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	for _, id := range req.ParticipantIDs {
		if _, err := users.GetUser(ctx, id); err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				apiutil.WriteError(w, r, apiutil.HandlerError{
					Status:  http.StatusBadRequest,
					Message: "Unknown participant",
					Err:     apiutil.FieldError{Field: "participantIds", Reason: "contains an unknown user"},
				})
				return
			}
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to load participants", Err: err})
			return
		}
	}

	conv, err := chatService.CreateConversation(ctx, user.ID, chat.NewConversation{
		Kind:           chat.ConversationKind(req.Kind),
		Title:          req.Title,
		TeamID:         req.TeamID,
		LeagueID:       req.LeagueID,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		apiutil.WriteError(w, r, chatError(err, "Failed to create conversation"))
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusCreated, conv); err != nil {
		logger.Error().Err(err).Int64("conversation_id", conv.ID).Msg("Failed to write conversation response")
	}
}

// HandleListMessages handles GET /api/v1/conversations/{id}/messages.
func HandleListMessages(w http.ResponseWriter, r *http.Request) {
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

	before, err := apiutil.ParseOptionalTime(r.URL.Query().Get("before"), "before")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	limit, err := apiutil.ParseOptionalInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	messages, err := chatService.ListMessages(ctx, user.ID, conversationID, chat.MessageQuery{Before: before, Limit: limit})
	if err != nil {
		apiutil.WriteError(w, r, chatError(err, "Failed to load messages"))
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"messages": messages}); err != nil {
		logger.Error().Err(err).Int64("conversation_id", conversationID).Msg("Failed to write messages response")
	}
}

// HandleSendMessage handles POST /api/v1/conversations/{id}/messages.
func HandleSendMessage(w http.ResponseWriter, r *http.Request) {
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

	var req sendMessageRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	if !allowSend(w, r, user.ID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	msg, err := chatService.SendText(ctx, user.ID, conversationID, req.Body)
	if err != nil {
		apiutil.WriteError(w, r, chatError(err, "Failed to send message"))
		return
	}
	recordSend(user.ID)

	if err := apiutil.WriteJSON(w, http.StatusCreated, msg); err != nil {
		logger.Error().Err(err).Str("message_id", msg.ID.String()).Msg("Failed to write message response")
	}
}

// HandleSendImage handles POST /api/v1/conversations/{id}/images. The request
// body is the raw image; ?caption= is optional.
func HandleSendImage(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if chatService == nil || mediaStore == nil {
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
	if !allowSend(w, r, user.ID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	// Nothing is written to disk for callers outside the conversation.
	if err := chatService.CheckParticipant(ctx, user.ID, conversationID); err != nil {
		apiutil.WriteError(w, r, chatError(err, "Failed to send image"))
		return
	}

	caption := r.URL.Query().Get("caption")
	if err := chatService.CheckCaption(caption); err != nil {
		apiutil.WriteError(w, r, chatError(err, "Failed to send image"))
		return
	}

	stored, err := mediaStore.Save(ctx, r.Body)
	if err != nil {
		apiutil.WriteError(w, r, mediaError(err))
		return
	}

	msg, err := chatService.SendImage(ctx, user.ID, conversationID, stored.URL, caption)
	if err != nil {
		if rmErr := mediaStore.Remove(stored.Name); rmErr != nil {
			logger.Error().Err(rmErr).Str("name", stored.Name).Msg("Failed to remove unsent image")
		}
		apiutil.WriteError(w, r, chatError(err, "Failed to send image"))
		return
	}
	recordSend(user.ID)

	if err := apiutil.WriteJSON(w, http.StatusCreated, msg); err != nil {
		logger.Error().Err(err).Str("message_id", msg.ID.String()).Msg("Failed to write image message response")
	}
}

// HandleMarkRead handles POST /api/v1/conversations/{id}/read.
func HandleMarkRead(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	if err := chatService.MarkRead(ctx, user.ID, conversationID); err != nil {
		apiutil.WriteError(w, r, chatError(err, "Failed to mark conversation read"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMedia handles GET /media/{file}. File names are unguessable uuids.
func HandleMedia(w http.ResponseWriter, r *http.Request) {
	if mediaStore == nil {
		notInitialized(w, r)
		return
	}

	name := strings.TrimSpace(r.PathValue(mediaFilePathKey))
	f, mime, err := mediaStore.Open(name)
	if err != nil {
		apiutil.WriteError(w, r, mediaError(err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to read media", Err: err})
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func allowSend(w http.ResponseWriter, r *http.Request, userID int64) bool {
	if limiter == nil {
		return true
	}
	result := limiter.CheckMessage(userID)
	if result.Allowed {
		return true
	}
	log.Ctx(r.Context()).Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", "chat_message").
		Int64("user_id", userID).
		Str("reason", result.Reason).
		Msg("Rate limit exceeded")
	w.Header().Set("Retry-After", result.RetryAfterSeconds())
	apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusTooManyRequests, Message: "You're sending messages too quickly"})
	return false
}

func recordSend(userID int64) {
	if limiter != nil {
		limiter.RecordMessage(userID)
	}
}

func chatError(err error, fallback string) error {
	switch {
	case errors.Is(err, chat.ErrNotParticipant):
		return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Conversation not found", Err: err}
	case errors.Is(err, chat.ErrEmptyMessage):
		return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Message body is required", Err: apiutil.FieldError{Field: "body", Reason: "is required"}}
	case errors.Is(err, chat.ErrMessageTooLong):
		return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Message is too long", Err: apiutil.FieldError{Field: "body", Reason: "is too long"}}
	case errors.Is(err, chat.ErrMissingImage):
		return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Image is required", Err: err}
	case errors.Is(err, chat.ErrInvalidConversation):
		return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid conversation", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return apiutil.HandlerError{Status: http.StatusGatewayTimeout, Message: "Request timed out", Err: err}
	default:
		return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: fallback, Err: err}
	}
}

func mediaError(err error) error {
	switch {
	case errors.Is(err, media.ErrEmpty):
		return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Image is empty", Err: err}
	case errors.Is(err, media.ErrTooLarge):
		return apiutil.HandlerError{Status: http.StatusRequestEntityTooLarge, Message: "Image is too large", Err: err}
	case errors.Is(err, media.ErrUnsupportedType):
		return apiutil.HandlerError{Status: http.StatusUnsupportedMediaType, Message: "Only JPEG, PNG, GIF and WebP images are accepted", Err: err}
	case errors.Is(err, media.ErrNotFound):
		return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Not found", Err: err}
	default:
		return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to store image", Err: err}
	}
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Error().Msg("Conversation handlers not initialized")
	apiutil.WriteError(w, r, errors.New("conversation handlers not initialized"))
}
