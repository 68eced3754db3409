package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codr1/leaguely/internal/config"
)

func newTestApp(t *testing.T, chatBackend string) http.Handler {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
app:
  name: "Leaguely"
  environment: "development"
  port: 8080
database:
  driver: "sqlite"
  filename: %q
data:
  source: "demo"
chat:
  backend: %q
  badger_dir: %q
  media_dir: %q
`, filepath.Join(dir, "leaguely.db"), chatBackend, filepath.Join(dir, "chat"), filepath.Join(dir, "media"))))
	if err != nil {
		t.Fatal(err)
	}
	cfg.App.SecretKey = "server-test-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	app, err := newApplication(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApplication: %v", err)
	}
	t.Cleanup(app.Close)

	return newHandler()
}

func login(t *testing.T, handler http.Handler, email string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"demo"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func TestServerRoutes(t *testing.T) {
	handler := newTestApp(t, "demo")
	alice := login(t, handler, "alice@demo.leaguely.app")
	ben := login(t, handler, "ben@demo.leaguely.app")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		token      string
		wantStatus int
		wantBody   string
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK, wantBody: "OK"},
		{name: "nearby teams anonymous", method: http.MethodGet, path: "/api/v1/nearby/teams", wantStatus: http.StatusUnauthorized},
		{name: "nearby teams", method: http.MethodGet, path: "/api/v1/nearby/teams?radius=10", token: alice, wantStatus: http.StatusOK, wantBody: `"teams"`},
		{name: "nearby leagues", method: http.MethodGet, path: "/api/v1/nearby/leagues", token: alice, wantStatus: http.StatusOK, wantBody: `"leagues"`},
		{name: "nearby free agents", method: http.MethodGet, path: "/api/v1/nearby/free-agents", token: alice, wantStatus: http.StatusOK, wantBody: `"freeAgents"`},
		{name: "me", method: http.MethodGet, path: "/api/v1/me", token: alice, wantStatus: http.StatusOK, wantBody: "alice@demo.leaguely.app"},
		{name: "me anonymous", method: http.MethodGet, path: "/api/v1/me", wantStatus: http.StatusUnauthorized},
		{name: "geocode", method: http.MethodGet, path: "/api/v1/geocode?address=Hoboken,+NJ", token: alice, wantStatus: http.StatusOK},
		{name: "team location as player", method: http.MethodPut, path: "/api/v1/teams/1/location", body: `{"address":"Hoboken, NJ"}`, token: alice, wantStatus: http.StatusForbidden},
		{name: "team location as manager", method: http.MethodPut, path: "/api/v1/teams/1/location", body: `{"address":"Jersey City, NJ"}`, token: ben, wantStatus: http.StatusOK},
		{name: "conversations", method: http.MethodGet, path: "/api/v1/conversations", token: alice, wantStatus: http.StatusOK, wantBody: "Hudson Hitters"},
		{name: "messages", method: http.MethodGet, path: "/api/v1/conversations/1/messages?limit=1", token: ben, wantStatus: http.StatusOK, wantBody: "See everyone there!"},
		{name: "send", method: http.MethodPost, path: "/api/v1/conversations/1/messages", body: `{"body":"Court 3 tonight"}`, token: ben, wantStatus: http.StatusCreated},
		{name: "read", method: http.MethodPost, path: "/api/v1/conversations/1/read", token: ben, wantStatus: http.StatusNoContent},
		{name: "outsider messages", method: http.MethodGet, path: "/api/v1/conversations/2/messages", token: ben, wantStatus: http.StatusNotFound},
		{name: "unknown media", method: http.MethodGet, path: "/media/nope.png", wantStatus: http.StatusNotFound},
		{name: "wrong method", method: http.MethodDelete, path: "/api/v1/conversations", token: alice, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantBody != "" && !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tc.wantBody, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Fatal("expected request id header")
			}
		})
	}
}

func TestServerBadgerBackend(t *testing.T) {
	handler := newTestApp(t, "badger")
	alice := login(t, handler, "alice@demo.leaguely.app")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", strings.NewReader(`{"kind":"direct","participantIds":[4]}`))
	req.Header.Set("Authorization", "Bearer "+alice)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create conversation: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+alice)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"kind":"direct"`) {
		t.Fatalf("list conversations: %d %s", rec.Code, rec.Body.String())
	}
}
