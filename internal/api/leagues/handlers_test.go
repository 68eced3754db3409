package leagues

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/leaguely/internal/api/authz"
	"github.com/codr1/leaguely/internal/directory"
	"github.com/codr1/leaguely/internal/geo"
	"github.com/codr1/leaguely/internal/geocode"
	"github.com/codr1/leaguely/internal/ratelimit"
)

func setupLeaguesTest(t *testing.T) *directory.Service {
	t.Helper()
	return setupLeaguesTestWithLimit(t, ratelimit.DefaultConfig().GeocodeMaxIPPerHour)
}

func setupLeaguesTestWithLimit(t *testing.T, geocodePerHour int) *directory.Service {
	t.Helper()

	prevService, prevLimiter, prevTrust := service, limiter, trustProxy
	svc := directory.NewService(directory.NewDemoRepository(), geocode.DemoGeocoder())
	rl := ratelimit.New(&ratelimit.Config{GeocodeMaxIPPerHour: geocodePerHour})
	InitHandlers(svc, rl, false)
	t.Cleanup(func() {
		rl.Close()
		service, limiter, trustProxy = prevService, prevLimiter, prevTrust
	})
	return svc
}

func withAuthUser(req *http.Request, userID int64, role string) *http.Request {
	return req.WithContext(authz.ContextWithUser(req.Context(), &authz.AuthUser{ID: userID, Role: role}))
}

type rankedTeamsResponse struct {
	Teams []geo.Ranked[directory.Team] `json:"teams"`
}

func TestHandleNearbyTeams(t *testing.T) {
	setupLeaguesTest(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantFirst  int64
		wantCount  int
	}{
		{name: "saved location", query: "", wantStatus: http.StatusOK, wantFirst: 1, wantCount: 5},
		{name: "radius filter", query: "?radius=10", wantStatus: http.StatusOK, wantFirst: 1, wantCount: 3},
		{name: "explicit reference", query: "?lat=39.95&lon=-75.16", wantStatus: http.StatusOK, wantFirst: 5, wantCount: 5},
		{name: "lat without lon", query: "?lat=39.95", wantStatus: http.StatusBadRequest},
		{name: "not a number", query: "?radius=far", wantStatus: http.StatusBadRequest},
		{name: "out of range", query: "?lat=91&lon=0", wantStatus: http.StatusBadRequest},
		{name: "negative radius", query: "?radius=-2", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := withAuthUser(httptest.NewRequest(http.MethodGet, "/api/v1/nearby/teams"+tc.query, nil), 1, "player")
			rec := httptest.NewRecorder()

			HandleNearbyTeams(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			var resp rankedTeamsResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if len(resp.Teams) != tc.wantCount || resp.Teams[0].Item.ID != tc.wantFirst {
				t.Fatalf("unexpected teams %+v", resp.Teams)
			}
			if resp.Teams[0].Distance == nil {
				t.Fatal("expected distance on nearest team")
			}
		})
	}
}

func TestHandleNearbyRequiresUser(t *testing.T) {
	setupLeaguesTest(t)

	rec := httptest.NewRecorder()
	HandleNearbyLeagues(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nearby/leagues", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleNearbyFreeAgentsWithoutLocation(t *testing.T) {
	setupLeaguesTest(t)

	// Erin has no saved location, so results keep storage order without distances.
	req := withAuthUser(httptest.NewRequest(http.MethodGet, "/api/v1/nearby/free-agents", nil), 5, "player")
	rec := httptest.NewRecorder()
	HandleNearbyFreeAgents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		FreeAgents []geo.Ranked[directory.Player] `json:"freeAgents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.FreeAgents) != 2 || resp.FreeAgents[0].Item.ID != 3 || resp.FreeAgents[0].Distance != nil {
		t.Fatalf("unexpected free agents %+v", resp.FreeAgents)
	}
	if strings.Contains(rec.Body.String(), "passwordHash") {
		t.Fatal("password hash leaked into response")
	}
}

func TestHandleTeamLocation(t *testing.T) {
	tests := []struct {
		name       string
		userID     int64
		role       string
		teamID     string
		body       string
		wantStatus int
	}{
		{name: "team manager", userID: 2, role: "manager", teamID: "1", body: `{"address":"Jersey City, NJ"}`, wantStatus: http.StatusOK},
		{name: "director", userID: 4, role: "director", teamID: "4", body: `{"address":"Newark, NJ"}`, wantStatus: http.StatusOK},
		{name: "other manager", userID: 2, role: "manager", teamID: "3", body: `{"address":"Newark, NJ"}`, wantStatus: http.StatusForbidden},
		{name: "player", userID: 1, role: "player", teamID: "1", body: `{"address":"Newark, NJ"}`, wantStatus: http.StatusForbidden},
		{name: "unknown address", userID: 4, role: "director", teamID: "1", body: `{"address":"Atlantis"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "blank address", userID: 4, role: "director", teamID: "1", body: `{"address":"   "}`, wantStatus: http.StatusBadRequest},
		{name: "unknown team", userID: 4, role: "director", teamID: "99", body: `{"address":"Newark, NJ"}`, wantStatus: http.StatusNotFound},
		{name: "bad id", userID: 4, role: "director", teamID: "abc", body: `{"address":"Newark, NJ"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := setupLeaguesTest(t)

			req := httptest.NewRequest(http.MethodPut, "/api/v1/teams/"+tc.teamID+"/location", strings.NewReader(tc.body))
			req.SetPathValue(teamIDPathKey, tc.teamID)
			req = withAuthUser(req, tc.userID, tc.role)
			rec := httptest.NewRecorder()

			HandleTeamLocation(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			team, err := svc.Repository().GetTeam(req.Context(), 1)
			if err != nil {
				t.Fatal(err)
			}
			if tc.teamID == "1" && (team.Location == nil || team.Location.Lat > 40.73) {
				t.Fatalf("expected Jersey City location saved, got %+v", team.Location)
			}
		})
	}
}

func TestHandleTeamLocationRateLimited(t *testing.T) {
	setupLeaguesTestWithLimit(t, 1)

	put := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/teams/1/location", strings.NewReader(`{"address":"Jersey City, NJ"}`))
		req.RemoteAddr = "203.0.113.9:4000"
		req.SetPathValue(teamIDPathKey, "1")
		rec := httptest.NewRecorder()
		HandleTeamLocation(rec, withAuthUser(req, 2, "manager"))
		return rec
	}

	if rec := put(); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := put()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}
