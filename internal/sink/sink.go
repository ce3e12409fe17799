package sink

import (
	"context"

	"github.com/calloutcrm/delivery/internal/model"
)

// EventSink receives "message sent" events for timeline/analytics
// consumers. Delivery of these events is fire-and-forget: a sink failure
// must never fail the send that produced it.
type EventSink interface {
	MessageSent(ctx context.Context, m model.Message) error
}

// Noop is used when no event backend is configured.
type Noop struct{}

func (Noop) MessageSent(context.Context, model.Message) error { return nil }
