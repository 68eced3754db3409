// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/codr1/leaguely/internal/api"
	"github.com/codr1/leaguely/internal/api/auth"
	"github.com/codr1/leaguely/internal/api/conversations"
	"github.com/codr1/leaguely/internal/api/leagues"
	"github.com/codr1/leaguely/internal/api/member"
	"github.com/codr1/leaguely/internal/config"
	"github.com/codr1/leaguely/internal/directory"
	"github.com/codr1/leaguely/internal/media"
)

func newServer(cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      newHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// newHandler builds the router wrapped in the middleware chain. The last
// middleware listed runs first.
func newHandler() http.Handler {
	router := http.NewServeMux()
	registerRoutes(router)

	return api.ChainMiddleware(
		router,
		api.WithAuth,
		api.WithRecovery,
		api.WithLogging,
		api.WithRequestID,
	)
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Auth routes
	mux.HandleFunc("POST /api/v1/auth/login", auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.HandleLogout)

	// Directory routes
	mux.HandleFunc("GET /api/v1/nearby/teams", leagues.HandleNearbyTeams)
	mux.HandleFunc("GET /api/v1/nearby/leagues", leagues.HandleNearbyLeagues)
	mux.HandleFunc("GET /api/v1/nearby/free-agents", leagues.HandleNearbyFreeAgents)
	mux.Handle("PUT /api/v1/teams/{id}/location", api.RequireRole(
		string(directory.RoleManager),
		string(directory.RoleDirector),
	)(http.HandlerFunc(leagues.HandleTeamLocation)))

	// Member routes
	mux.Handle("GET /api/v1/me", api.RequireAuth(http.HandlerFunc(member.HandleMe)))
	mux.Handle("PUT /api/v1/me/location", api.RequireAuth(http.HandlerFunc(member.HandleUpdateLocation)))
	mux.Handle("PUT /api/v1/me/free-agent", api.RequireAuth(http.HandlerFunc(member.HandleUpdateFreeAgent)))
	mux.HandleFunc("GET /api/v1/geocode", member.HandleGeocode)

	// Conversation routes
	mux.HandleFunc("GET /api/v1/conversations", conversations.HandleListConversations)
	mux.HandleFunc("POST /api/v1/conversations", conversations.HandleCreateConversation)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", conversations.HandleListMessages)
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", conversations.HandleSendMessage)
	mux.HandleFunc("POST /api/v1/conversations/{id}/images", conversations.HandleSendImage)
	mux.HandleFunc("POST /api/v1/conversations/{id}/read", conversations.HandleMarkRead)
	mux.HandleFunc("GET /api/v1/conversations/{id}/events", conversations.HandleEvents)

	// Uploaded images
	mux.HandleFunc("GET "+media.URLPrefix+"{file}", conversations.HandleMedia)
}
