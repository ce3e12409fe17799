package loop

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/calloutcrm/delivery/internal/channel"
	"github.com/calloutcrm/delivery/internal/dispatch"
	"github.com/calloutcrm/delivery/internal/model"
	"github.com/calloutcrm/delivery/internal/repo"
	"github.com/calloutcrm/delivery/internal/retry"
)

// RetryJob re-attempts FAILED outbound messages that still have retry
// budget. Each attempt consumes exactly one retry slot whether it ends in
// SENT or FAILED; a locally rate-limited attempt consumes nothing.
type RetryJob struct {
	messages   repo.MessageStore
	contacts   repo.ContactStore
	dispatcher *dispatch.Dispatcher
	backoff    retry.Backoff
	maxRetries int
	batchSize  int

	now    func() time.Time
	logger *slog.Logger
}

func NewRetryJob(
	messages repo.MessageStore,
	contacts repo.ContactStore,
	dispatcher *dispatch.Dispatcher,
	backoff retry.Backoff,
	maxRetries int,
	batchSize int,
) *RetryJob {
	return &RetryJob{
		messages:   messages,
		contacts:   contacts,
		dispatcher: dispatcher,
		backoff:    backoff,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

func (j *RetryJob) Tick(ctx context.Context) {
	candidates, err := j.messages.ListFailedRetryable(ctx, j.maxRetries, j.batchSize)
	if err != nil {
		j.logger.Error("failed to load retryable messages", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	var attempted, sent int
	for _, m := range candidates {
		if !j.backoff.Due(m.RetryCount, m.UpdatedAt, j.now()) {
			continue
		}
		attempted++
		if j.process(ctx, m) {
			sent++
		}
	}

	j.logger.Info("retry batch done",
		"candidates", len(candidates), "attempted", attempted, "sent", sent)
}

func (j *RetryJob) process(ctx context.Context, m model.Message) bool {
	claimed, err := j.messages.ClaimForRetry(ctx, m.ID, m.RetryCount)
	if err != nil {
		j.logger.Error("failed to claim message for retry",
			"message_id", m.ID, "error", err)
		return false
	}
	if !claimed {
		// Someone else already handled this attempt; move on.
		return false
	}

	contact, err := j.contacts.Get(ctx, m.ContactID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			j.exhaust(ctx, m, "contact no longer exists")
			return false
		}
		// Store trouble: hand the claim back untouched so the row keeps
		// its budget for the next tick.
		j.release(ctx, m.ID)
		j.logger.Error("failed to load contact for retry",
			"message_id", m.ID, "contact_id", m.ContactID, "error", err)
		return false
	}

	res := j.dispatcher.Dispatch(ctx, contact, m.Channel, m.Content, m.Attachments, m.IdempotencyKey)

	if res.Success {
		if err := j.messages.MarkSent(ctx, m.ID, res.ExternalID); err != nil {
			j.logger.Error("failed to mark retried message sent",
				"message_id", m.ID, "error", err)
			return false
		}
		j.logger.Info("retry succeeded",
			"message_id", m.ID, "attempt", m.RetryCount+1, "external_id", res.ExternalID)
		return true
	}

	switch res.Kind {
	case channel.KindRateLimited:
		// Blocked locally, no provider call was made; keep the budget.
		j.release(ctx, m.ID)

	case channel.KindNoRecipient, channel.KindNoIntegration:
		// Retrying cannot fix a missing address or channel; burn the
		// remaining budget now.
		j.exhaust(ctx, m, res.Err)

	default:
		if err := j.messages.MarkFailed(ctx, m.ID, res.Err); err != nil {
			j.logger.Error("failed to record retry failure",
				"message_id", m.ID, "error", err)
			return false
		}
		if m.RetryCount+1 >= j.maxRetries {
			j.logger.Error("message permanently failed",
				"message_id", m.ID, "retries", m.RetryCount+1, "reason", res.Err)
		} else {
			j.logger.Warn("retry failed",
				"message_id", m.ID, "attempt", m.RetryCount+1, "reason", res.Err)
		}
	}
	return false
}

func (j *RetryJob) release(ctx context.Context, id int64) {
	if err := j.messages.ReleaseClaim(ctx, id); err != nil {
		j.logger.Error("failed to release retry claim", "message_id", id, "error", err)
	}
}

func (j *RetryJob) exhaust(ctx context.Context, m model.Message, reason string) {
	if err := j.messages.Exhaust(ctx, m.ID, j.maxRetries, reason); err != nil {
		j.logger.Error("failed to exhaust message retries",
			"message_id", m.ID, "error", err)
		return
	}
	j.logger.Error("message permanently failed",
		"message_id", m.ID, "retries", j.maxRetries, "reason", reason)
}
