package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguely/internal/chat"
)

const digestSendTimeout = 10 * time.Second

// DigestResult counts the outcome of one digest run.
type DigestResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// SendUnreadDigests emails every user with unread messages and moves their
// digest mark to now. Users whose send fails keep their mark so the next run
// retries them. The run stops early when ctx is done.
func SendUnreadDigests(ctx context.Context, source chat.DigestSource, sender EmailSender, details DigestDetails, now time.Time) (DigestResult, error) {
	var result DigestResult
	if source == nil || sender == nil {
		return result, errors.New("digest source and sender are required")
	}
	logger := log.Ctx(ctx)

	digests, err := source.UnreadDigests(ctx)
	if err != nil {
		return result, fmt.Errorf("load unread digests: %w", err)
	}

	for _, digest := range digests {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if digest.Unread <= 0 || strings.TrimSpace(digest.Email) == "" {
			result.Skipped++
			continue
		}

		msg := BuildUnreadDigest(digest, details)
		sendCtx, cancel := context.WithTimeout(ctx, digestSendTimeout)
		err := sender.Send(sendCtx, digest.Email, msg.Subject, msg.Body)
		cancel()
		if err != nil {
			result.Failed++
			logger.Error().Err(err).Int64("user_id", digest.UserID).Msg("Failed to send unread digest")
			continue
		}

		if err := source.MarkDigestSent(ctx, digest.UserID, now); err != nil {
			logger.Error().Err(err).Int64("user_id", digest.UserID).Msg("Failed to record digest sent")
		}
		result.Sent++
	}

	logger.Info().
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Unread digests processed")
	return result, nil
}
