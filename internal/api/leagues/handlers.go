// internal/api/leagues/handlers.go
package leagues

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
	directoryQueryTimeout = 5 * time.Second
	geocodeTimeout        = 15 * time.Second
	teamIDPathKey         = "id"
)

var (
	service    *directory.Service
	limiter    *ratelimit.Limiter
	trustProxy bool
)

type teamLocationRequest struct {
	Address string `json:"address" validate:"required,max=300"`
}

type nearbyQuery struct {
	Reference *geo.Coordinate
	Radius    *float64
}

type nearbyFunc[T any] func(ctx context.Context, userID int64, ref *geo.Coordinate, radius *float64) ([]geo.Ranked[T], error)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *directory.Service, rl *ratelimit.Limiter, trustProxyHeaders bool) {
	service = svc
	limiter = rl
	trustProxy = trustProxyHeaders
}

// HandleNearbyTeams handles GET /api/v1/nearby/teams.
func HandleNearbyTeams(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	serveNearby(w, r, "teams", service.NearbyTeams)
}

// HandleNearbyLeagues handles GET /api/v1/nearby/leagues.
func HandleNearbyLeagues(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	serveNearby(w, r, "leagues", service.NearbyLeagues)
}

// HandleNearbyFreeAgents handles GET /api/v1/nearby/free-agents.
func HandleNearbyFreeAgents(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	serveNearby(w, r, "freeAgents", service.NearbyFreeAgents)
}

func serveNearby[T any](w http.ResponseWriter, r *http.Request, key string, find nearbyFunc[T]) {
	logger := log.Ctx(r.Context())

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	q, err := parseNearbyQuery(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), directoryQueryTimeout)
	defer cancel()

	results, err := find(ctx, user.ID, q.Reference, q.Radius)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.DirectoryError(err, "Failed to load "+key))
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{key: results}); err != nil {
		logger.Error().Err(err).Str("collection", key).Msg("Failed to write nearby response")
	}
}

// parseNearbyQuery reads lat, lon and radius. lat and lon must come together.
func parseNearbyQuery(r *http.Request) (nearbyQuery, error) {
	query := r.URL.Query()

	lat, err := apiutil.ParseOptionalFloat(query.Get("lat"), "lat")
	if err != nil {
		return nearbyQuery{}, err
	}
	lon, err := apiutil.ParseOptionalFloat(query.Get("lon"), "lon")
	if err != nil {
		return nearbyQuery{}, err
	}
	radius, err := apiutil.ParseOptionalFloat(query.Get("radius"), "radius")
	if err != nil {
		return nearbyQuery{}, err
	}

	var out nearbyQuery
	switch {
	case lat != nil && lon != nil:
		out.Reference = &geo.Coordinate{Lat: *lat, Lon: *lon}
	case lat != nil:
		return nearbyQuery{}, apiutil.FieldError{Field: "lon", Reason: "is required with lat"}
	case lon != nil:
		return nearbyQuery{}, apiutil.FieldError{Field: "lat", Reason: "is required with lon"}
	}
	out.Radius = radius
	return out, nil
}

// HandleTeamLocation handles PUT /api/v1/teams/{id}/location.
func HandleTeamLocation(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if service == nil {
		notInitialized(w, r)
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	teamID, err := apiutil.PathID(r, teamIDPathKey)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req teamLocationRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	if err := apiutil.Validate(r.Context(), req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), geocodeTimeout)
	defer cancel()

	if err := service.AuthorizeTeamEdit(ctx, user.ID, teamID); err != nil {
		apiutil.WriteError(w, r, apiutil.DirectoryError(err, "Failed to authorize team update"))
		return
	}
	if !allowGeocode(w, r) {
		return
	}

	coord, err := service.SetLocationFromAddress(ctx, directory.TargetTeam, teamID, req.Address)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.DirectoryError(err, "Failed to update team location"))
		return
	}

	logger.Info().Int64("user_id", user.ID).Int64("team_id", teamID).Msg("Team location updated")

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"teamId": teamID, "location": coord}); err != nil {
		logger.Error().Err(err).Int64("team_id", teamID).Msg("Failed to write team location response")
	}
}

// allowGeocode applies the per-IP address lookup limit shared with the member
// endpoints.
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
	log.Ctx(r.Context()).Error().Msg("League handlers not initialized")
	apiutil.WriteError(w, r, errors.New("league handlers not initialized"))
}
