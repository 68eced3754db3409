// internal/api/member/handlers.go
package member

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguely/internal/api/apiutil"
	"github.com/codr1/leaguely/internal/directory"
	"github.com/codr1/leaguely/internal/geo"
	"github.com/codr1/leaguely/internal/ratelimit"
)

const (
	memberQueryTimeout = 5 * time.Second
	geocodeTimeout     = 15 * time.Second
)

var (
	service    *directory.Service
	limiter    *ratelimit.Limiter
	trustProxy bool
)

// locationRequest sets coordinates directly or resolves an address. Both
// coordinates null with no address clears the saved location.
type locationRequest struct {
	Lat     *float64 `json:"lat" validate:"required_with=Lon"`
	Lon     *float64 `json:"lon" validate:"required_with=Lat"`
	Address string   `json:"address" validate:"max=300"`
}

type freeAgentRequest struct {
	Phone     string `json:"phone" validate:"max=32"`
	Available *bool  `json:"available" validate:"required"`
}

type locationResponse struct {
	Location *geo.Coordinate `json:"location"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *directory.Service, rl *ratelimit.Limiter, trustProxyHeaders bool) {
	service = svc
	limiter = rl
	trustProxy = trustProxyHeaders
}

// HandleMe handles GET /api/v1/me.
func HandleMe(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if service == nil {
		notInitialized(w, r)
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	player, err := service.Repository().GetUser(ctx, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.DirectoryError(err, "Failed to load profile"))
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, player); err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to write profile response")
	}
}

// HandleUpdateLocation handles PUT /api/v1/me/location.
func HandleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if service == nil {
		notInitialized(w, r)
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req locationRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	if err := apiutil.Validate(r.Context(), req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if req.Address != "" && req.Lat != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "address", Reason: "cannot be combined with lat and lon"})
		return
	}

	var resp locationResponse
	switch {
	case req.Address != "":
		if !allowGeocode(w, r) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), geocodeTimeout)
		defer cancel()

		coord, err := service.SetLocationFromAddress(ctx, directory.TargetUser, user.ID, req.Address)
		if err != nil {
			apiutil.WriteError(w, r, apiutil.DirectoryError(err, "Failed to update location"))
			return
		}
		resp.Location = &coord
	default:
		var coord *geo.Coordinate
		if req.Lat != nil {
			coord = &geo.Coordinate{Lat: *req.Lat, Lon: *req.Lon}
		}

		ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
		defer cancel()

		if err := service.SetLocation(ctx, user.ID, coord); err != nil {
			apiutil.WriteError(w, r, apiutil.DirectoryError(err, "Failed to update location"))
			return
		}
		resp.Location = coord
	}

	logger.Info().Int64("user_id", user.ID).Bool("cleared", resp.Location == nil).Msg("User location updated")

	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to write location response")
	}
}

// HandleUpdateFreeAgent handles PUT /api/v1/me/free-agent.
func HandleUpdateFreeAgent(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if service == nil {
		notInitialized(w, r)
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req freeAgentRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	if err := apiutil.Validate(r.Context(), req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	player, err := service.UpdateFreeAgent(ctx, user.ID, req.Phone, *req.Available)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.DirectoryError(err, "Failed to update free agent status"))
		return
	}

	logger.Info().Int64("user_id", user.ID).Bool("available", player.FreeAgent).Msg("Free agent status updated")

	if err := apiutil.WriteJSON(w, http.StatusOK, player); err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to write free agent response")
	}
}

// HandleGeocode handles GET /api/v1/geocode?address=.
func HandleGeocode(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if service == nil {
		notInitialized(w, r)
		return
	}
	if _, ok := apiutil.RequireUser(w, r); !ok {
		return
	}

	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "address", Reason: "is required"})
		return
	}
	if !allowGeocode(w, r) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), geocodeTimeout)
	defer cancel()

	coord, err := service.Geocode(ctx, address)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.DirectoryError(err, "Failed to look up address"))
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"address": address, "location": coord}); err != nil {
		logger.Error().Err(err).Msg("Failed to write geocode response")
	}
}

// allowGeocode enforces the per-IP lookup limit and records the lookup.
func allowGeocode(w http.ResponseWriter, r *http.Request) bool {
	if limiter == nil {
		return true
	}
	ip := ratelimit.GetClientIP(r, trustProxy)
	result := limiter.CheckGeocode(ip)
	if !result.Allowed {
		ratelimit.LogRateLimitExceeded(r.Context(), "geocode", ip, ip, result.Reason)
		w.Header().Set("Retry-After", result.RetryAfterSeconds())
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusTooManyRequests, Message: "Too many address lookups, try again later"})
		return false
	}
	limiter.RecordGeocode(ip)
	return true
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Error().Msg("Member handlers not initialized")
	apiutil.WriteError(w, r, errors.New("member handlers not initialized"))
}
