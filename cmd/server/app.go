package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguely/internal/api/auth"
	"github.com/codr1/leaguely/internal/api/conversations"
	"github.com/codr1/leaguely/internal/api/leagues"
	"github.com/codr1/leaguely/internal/api/member"
	"github.com/codr1/leaguely/internal/chat"
	"github.com/codr1/leaguely/internal/config"
	"github.com/codr1/leaguely/internal/db"
	"github.com/codr1/leaguely/internal/directory"
	"github.com/codr1/leaguely/internal/email"
	"github.com/codr1/leaguely/internal/geocode"
	"github.com/codr1/leaguely/internal/media"
	"github.com/codr1/leaguely/internal/ratelimit"
	"github.com/codr1/leaguely/internal/scheduler"
)

// application holds the wired services behind the HTTP handlers.
type application struct {
	repo      directory.Repository
	directory *directory.Service
	chat      *chat.Service
	media     *media.DiskStore
	limiter   *ratelimit.Limiter
	jobs      scheduler.Jobs
	closers   []func() error
}

// newApplication opens storage, builds the services and initializes the
// handler packages.
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	var database *db.DB
	needsDB := cfg.Data.Source == config.DataSourceSQLite || cfg.Chat.Backend == config.ChatBackendSQLite ||
		(cfg.GeocodingEnabled() && cfg.Geocoding.CacheTTLHours > 0)
	if needsDB {
		var err error
		database, err = db.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		app.closers = append(app.closers, database.Close)
		log.Info().Str("database", cfg.Database.Filename).Msg("Database ready")
	}

	switch cfg.Data.Source {
	case config.DataSourceDemo:
		app.repo = directory.NewDemoRepository()
	default:
		app.repo = directory.NewSQLRepository(database)
	}

	var geocoder geocode.Geocoder
	switch {
	case cfg.GeocodingEnabled():
		httpGeocoder := geocode.NewHTTPGeocoder(cfg.Geocoding.BaseURL, cfg.Geocoding.UserAgent, time.Duration(cfg.Geocoding.TimeoutSeconds)*time.Second)
		geocoder = httpGeocoder
		if database != nil && cfg.Geocoding.CacheTTLHours > 0 {
			cached := geocode.NewCachedGeocoder(httpGeocoder, database, time.Duration(cfg.Geocoding.CacheTTLHours)*time.Hour)
			geocoder = cached
			app.jobs.Geocoder = cached
		}
	case cfg.Data.Source == config.DataSourceDemo:
		geocoder = geocode.DemoGeocoder()
	default:
		log.Warn().Msg("Geocoding disabled: no base_url configured")
	}
	app.directory = directory.NewService(app.repo, geocoder)

	var backend chat.Backend
	switch cfg.Chat.Backend {
	case config.ChatBackendBadger:
		badgerBackend, err := chat.OpenBadgerBackend(cfg.Chat.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("open chat store: %w", err)
		}
		app.closers = append(app.closers, badgerBackend.Close)
		backend = badgerBackend
	case config.ChatBackendDemo:
		demoBackend, err := chat.NewDemoBackend(time.Now())
		if err != nil {
			return nil, fmt.Errorf("seed demo chat: %w", err)
		}
		backend = demoBackend
	default:
		sqlBackend := chat.NewSQLBackend(database)
		app.jobs.Digests = sqlBackend
		backend = sqlBackend
	}
	app.chat = chat.NewService(backend, chat.Options{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		PageSize:         cfg.Chat.PageSize,
		SubscriberBuffer: cfg.Chat.SubscriberBuffer,
	})
	log.Info().Str("backend", cfg.Chat.Backend).Msg("Chat service ready")

	store, err := media.NewDiskStore(cfg.Chat.MediaDir, cfg.Chat.MaxImageBytes)
	if err != nil {
		return nil, err
	}
	app.media = store

	limits := ratelimit.DefaultConfig()
	limits.MessageCooldown = time.Duration(cfg.RateLimit.MessageCooldownMillis) * time.Millisecond
	limits.MessageMaxPerMinute = cfg.RateLimit.MessageMaxPerMinute
	limits.GeocodeMaxIPPerHour = cfg.RateLimit.GeocodeMaxIPPerHour
	app.limiter = ratelimit.New(limits)
	app.closers = append(app.closers, func() error {
		app.limiter.Close()
		return nil
	})

	app.jobs.Crons = cfg.Scheduler
	app.jobs.Messages = app.chat
	app.jobs.RetentionDays = cfg.Chat.RetentionDays
	app.jobs.DigestDetails = email.DigestDetails{AppName: cfg.App.Name, BaseURL: cfg.App.BaseURL}
	if cfg.EmailEnabled() {
		client, err := email.NewSESClient(ctx, cfg.Email.AccessKeyID, cfg.Email.SecretAccessKey, cfg.Email.Region, cfg.Email.Sender)
		if err != nil {
			return nil, fmt.Errorf("init email: %w", err)
		}
		app.jobs.Email = client
	}

	auth.InitHandlers(cfg, app.repo, app.limiter)
	leagues.InitHandlers(app.directory, app.limiter, cfg.RateLimit.TrustProxy)
	member.InitHandlers(app.directory, app.limiter, cfg.RateLimit.TrustProxy)
	conversations.InitHandlers(app.chat, app.repo, app.media, app.limiter)

	ok = true
	return app, nil
}

// Close releases storage in reverse order of opening. It is safe to call twice.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}
