package loop

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calloutcrm/delivery/internal/channel"
	"github.com/calloutcrm/delivery/internal/dispatch"
	"github.com/calloutcrm/delivery/internal/model"
	"github.com/calloutcrm/delivery/internal/repo"
	"github.com/calloutcrm/delivery/internal/sink"
)

// ScheduledJob promotes due ScheduledMessage rows into delivery attempts,
// once each. PENDING is the only state it acts on; SENT, FAILED and
// CANCELLED are terminal and a FAILED row requires human re-creation.
type ScheduledJob struct {
	scheduled  repo.ScheduledMessageStore
	messages   repo.MessageStore
	contacts   repo.ContactStore
	dispatcher *dispatch.Dispatcher
	events     sink.EventSink
	batchSize  int

	now    func() time.Time
	logger *slog.Logger
}

func NewScheduledJob(
	scheduled repo.ScheduledMessageStore,
	messages repo.MessageStore,
	contacts repo.ContactStore,
	dispatcher *dispatch.Dispatcher,
	events sink.EventSink,
	batchSize int,
) *ScheduledJob {
	return &ScheduledJob{
		scheduled:  scheduled,
		messages:   messages,
		contacts:   contacts,
		dispatcher: dispatcher,
		events:     events,
		batchSize:  batchSize,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// Tick processes one batch of due rows. Failures are isolated per row; a
// storage outage ends the tick early and the next timer fire retries.
func (j *ScheduledJob) Tick(ctx context.Context) {
	now := j.now()

	due, err := j.scheduled.ListDue(ctx, now, j.batchSize)
	if err != nil {
		j.logger.Error("failed to load due scheduled messages", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	var sent, failed int
	for _, sm := range due {
		if sm.Status != model.ScheduledPending {
			continue
		}
		if j.process(ctx, sm) {
			sent++
		} else {
			failed++
		}
	}

	j.logger.Info("scheduled dispatch batch done",
		"due", len(due), "sent", sent, "failed", failed)
}

func (j *ScheduledJob) process(ctx context.Context, sm model.ScheduledMessage) bool {
	now := j.now()

	contact, err := j.contacts.Get(ctx, sm.ContactID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			j.fail(ctx, sm, "contact no longer exists")
			return false
		}
		// Store trouble: leave the row PENDING for the next tick.
		j.logger.Error("failed to load contact for scheduled message",
			"scheduled_message_id", sm.ID, "contact_id", sm.ContactID, "error", err)
		return false
	}

	idempotencyKey := uuid.NewString()
	res := j.dispatcher.Dispatch(ctx, contact, sm.Channel, sm.Content, nil, idempotencyKey)

	if !res.Success {
		if res.Kind == channel.KindRateLimited {
			// Not a delivery failure; the row stays PENDING and the next
			// tick tries again once the window frees up.
			j.logger.Info("scheduled message rate limited, deferring",
				"scheduled_message_id", sm.ID, "channel", string(sm.Channel))
			return false
		}
		j.fail(ctx, sm, res.Err)
		return false
	}

	won, err := j.scheduled.MarkSent(ctx, sm.ID, now)
	if err != nil {
		j.logger.Error("failed to finalize scheduled message",
			"scheduled_message_id", sm.ID, "error", err)
		return false
	}
	if !won {
		// Cancelled (or processed elsewhere) between the read and the
		// finalize. The provider call already happened; the idempotency
		// key keeps a concurrent duplicate harmless upstream.
		j.logger.Warn("scheduled message left PENDING before finalize, skipping record",
			"scheduled_message_id", sm.ID)
		return false
	}

	msg := model.Message{
		ContactID:      sm.ContactID,
		UserID:         &sm.UserID,
		Channel:        sm.Channel,
		Direction:      model.DirectionOutbound,
		Status:         model.MessageSent,
		Content:        sm.Content,
		ExternalID:     &res.ExternalID,
		IdempotencyKey: idempotencyKey,
		SentAt:         &now,
	}

	created, err := j.messages.Create(ctx, msg)
	if err != nil {
		j.logger.Error("failed to record sent message",
			"scheduled_message_id", sm.ID, "error", err)
		return true // the send itself succeeded
	}

	if err := j.contacts.TouchLastContacted(ctx, sm.ContactID, now); err != nil {
		j.logger.Warn("failed to update last contacted",
			"contact_id", sm.ContactID, "error", err)
	}

	if err := j.events.MessageSent(ctx, created); err != nil {
		j.logger.Warn("failed to emit sent event",
			"message_id", created.ID, "error", err)
	}

	return true
}

func (j *ScheduledJob) fail(ctx context.Context, sm model.ScheduledMessage, reason string) {
	won, err := j.scheduled.MarkFailed(ctx, sm.ID, reason)
	if err != nil {
		j.logger.Error("failed to mark scheduled message failed",
			"scheduled_message_id", sm.ID, "error", err)
		return
	}
	if !won {
		j.logger.Warn("scheduled message left PENDING before failure record",
			"scheduled_message_id", sm.ID)
		return
	}
	j.logger.Info("scheduled message failed",
		"scheduled_message_id", sm.ID, "reason", reason)
}
