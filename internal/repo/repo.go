package repo

import (
	"context"
	"errors"
	"time"

	"github.com/calloutcrm/delivery/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("repo: not found")

type ContactStore interface {
	Get(ctx context.Context, id int64) (model.Contact, error)
	// TouchLastContacted records an outreach touch on the contact.
	TouchLastContacted(ctx context.Context, id int64, at time.Time) error
}

type MessageStore interface {
	Create(ctx context.Context, m model.Message) (model.Message, error)
	// ListFailedRetryable returns FAILED rows that still have retry budget,
	// oldest-attempt first, bounded by limit.
	ListFailedRetryable(ctx context.Context, maxRetries, limit int) ([]model.Message, error)
	// ClaimForRetry atomically moves a FAILED row to QUEUED, but only if its
	// retry count still matches what the caller observed. A false return
	// means another worker (or a manual retry) got there first.
	ClaimForRetry(ctx context.Context, id int64, observedRetryCount int) (bool, error)
	// MarkSent finalizes a claimed row as SENT, consuming one retry slot.
	MarkSent(ctx context.Context, id int64, externalID string) error
	// MarkFailed returns a claimed row to FAILED with a new reason,
	// consuming one retry slot.
	MarkFailed(ctx context.Context, id int64, reason string) error
	// ReleaseClaim returns a claimed row to FAILED without consuming retry
	// budget (used when the local rate limiter blocked the attempt).
	ReleaseClaim(ctx context.Context, id int64) error
	// Exhaust drives a row's retry count straight to the maximum, making it
	// permanently terminal.
	Exhaust(ctx context.Context, id int64, maxRetries int, reason string) error
	ListRecent(ctx context.Context, limit, offset int) ([]model.Message, error)
}

type ScheduledMessageStore interface {
	// ListDue returns PENDING rows whose scheduled time has arrived,
	// bounded by limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)
	// MarkSent transitions PENDING -> SENT. A false return means the row
	// already left PENDING (sent, failed or cancelled elsewhere).
	MarkSent(ctx context.Context, id int64, at time.Time) (bool, error)
	// MarkFailed transitions PENDING -> FAILED with the error text.
	MarkFailed(ctx context.Context, id int64, reason string) (bool, error)
}
