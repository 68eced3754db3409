package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguely/internal/chat"
	"github.com/codr1/leaguely/internal/config"
	"github.com/codr1/leaguely/internal/email"
)

const (
	geocodePruneJobName = "geocode_cache_prune"
	retentionJobName    = "chat_retention_purge"
	digestJobName       = "unread_digest"

	jobTimeout = 2 * time.Minute
)

type GeocodePruner interface {
	Prune(ctx context.Context, now time.Time) (int64, error)
}

type MessagePurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Jobs lists the collaborators of the maintenance jobs. A nil collaborator
// leaves its job unregistered.
type Jobs struct {
	Crons         config.SchedulerConfig
	Geocoder      GeocodePruner
	Messages      MessagePurger
	RetentionDays int
	Digests       chat.DigestSource
	Email         email.EmailSender
	DigestDetails email.DigestDetails
	Now           func() time.Time
}

// RegisterJobs registers the maintenance jobs with the singleton scheduler.
func RegisterJobs(jobs Jobs) ([]string, error) {
	svc, err := ServiceInstance()
	if err != nil {
		return nil, err
	}
	return svc.RegisterJobs(jobs)
}

// RegisterJobs registers every job whose collaborators are present and
// returns the names registered.
func (s *Service) RegisterJobs(jobs Jobs) ([]string, error) {
	now := jobs.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	var registered []string
	add := func(name, cronExpr string, run func(ctx context.Context) error) error {
		jobLogger := log.With().Str("component", name+"_job").Logger()
		_, err := s.AddJob(name, cronExpr, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			ctx = jobLogger.WithContext(ctx)

			if err := run(ctx); err != nil {
				jobLogger.Error().Err(err).Msg("Scheduler job failed")
			}
		}, gocron.WithSingletonMode(gocron.LimitModeReschedule))
		if err != nil {
			return fmt.Errorf("add %s job: %w", name, err)
		}
		registered = append(registered, name)
		return nil
	}

	if jobs.Geocoder != nil {
		if err := add(geocodePruneJobName, jobs.Crons.GeocodePruneCron, func(ctx context.Context) error {
			_, err := PruneGeocodeCache(ctx, jobs.Geocoder, now())
			return err
		}); err != nil {
			return registered, err
		}
	}

	if jobs.Messages != nil && jobs.RetentionDays > 0 {
		if err := add(retentionJobName, jobs.Crons.RetentionCron, func(ctx context.Context) error {
			_, err := PurgeExpiredMessages(ctx, jobs.Messages, jobs.RetentionDays, now())
			return err
		}); err != nil {
			return registered, err
		}
	}

	if jobs.Digests != nil && jobs.Email != nil {
		if err := add(digestJobName, jobs.Crons.DigestCron, func(ctx context.Context) error {
			_, err := email.SendUnreadDigests(ctx, jobs.Digests, jobs.Email, jobs.DigestDetails, now())
			return err
		}); err != nil {
			return registered, err
		}
	}

	return registered, nil
}

// PruneGeocodeCache drops expired geocode cache entries.
func PruneGeocodeCache(ctx context.Context, pruner GeocodePruner, now time.Time) (int64, error) {
	n, err := pruner.Prune(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("prune geocode cache: %w", err)
	}
	if n > 0 {
		log.Ctx(ctx).Info().Int64("removed", n).Msg("Geocode cache pruned")
	}
	return n, nil
}

// PurgeExpiredMessages deletes chat messages older than retentionDays.
// A non-positive retention keeps everything.
func PurgeExpiredMessages(ctx context.Context, purger MessagePurger, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	n, err := purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge chat messages: %w", err)
	}
	log.Ctx(ctx).Info().Int64("removed", n).Time("cutoff", cutoff).Msg("Chat messages purged")
	return n, nil
}
