package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguely/internal/api/apiutil"
	"github.com/codr1/leaguely/internal/api/authz"
	"github.com/codr1/leaguely/internal/config"
	"github.com/codr1/leaguely/internal/directory"
	"github.com/codr1/leaguely/internal/ratelimit"
)

var (
	appConfig *config.Config
	users     directory.Repository
	limiter   *ratelimit.Limiter
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      directory.Player `json:"user"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(cfg *config.Config, repo directory.Repository, rl *ratelimit.Limiter) {
	appConfig = cfg
	users = repo
	limiter = rl
}

// HandleLogin handles POST /api/v1/auth/login.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if users == nil || appConfig == nil {
		logger.Error().Msg("Auth handlers not initialized")
		apiutil.WriteError(w, r, errors.New("auth handlers not initialized"))
		return
	}

	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	if err := apiutil.Validate(r.Context(), req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ip := ratelimit.GetClientIP(r, appConfig.RateLimit.TrustProxy)
	if limiter != nil {
		if result := limiter.CheckLogin(req.Email, ip); !result.Allowed {
			ratelimit.LogRateLimitExceeded(r.Context(), "login", req.Email, ip, result.Reason)
			w.Header().Set("Retry-After", result.RetryAfterSeconds())
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusTooManyRequests, Message: "Too many login attempts"})
			return
		}
	}

	player, err := users.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to sign in", Err: err})
		return
	}
	if err != nil || player.PasswordHash == "" || !VerifyPassword(player.PasswordHash, req.Password) {
		if limiter != nil && limiter.RecordLoginFailure(req.Email, ip) {
			logger.Warn().
				Str("identifier", ratelimit.SanitizeIdentifier(req.Email)).
				Str("ip", ip).
				Msg("Login locked out after repeated failures")
		}
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusUnauthorized, Message: "Invalid email or password"})
		return
	}
	if limiter != nil {
		limiter.ResetLogin(req.Email)
	}

	token, expiresAt, err := IssueToken(&authz.AuthUser{ID: player.ID, Role: string(player.Role)}, time.Now())
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to sign in", Err: err})
		return
	}
	SetAuthCookie(w, token, expiresAt)

	logger.Info().Int64("user_id", player.ID).Msg("User signed in")

	if err := apiutil.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, User: player}); err != nil {
		logger.Error().Err(err).Int64("user_id", player.ID).Msg("Failed to write login response")
	}
}

// HandleLogout handles POST /api/v1/auth/logout.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
