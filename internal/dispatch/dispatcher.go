package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/calloutcrm/delivery/internal/channel"
	"github.com/calloutcrm/delivery/internal/model"
	"github.com/calloutcrm/delivery/internal/ratelimit"
)

// Dispatcher is the one code path for "attempt to deliver content X to
// contact Y on channel Z", shared by immediate sends, scheduled dispatch and
// retries. It is stateless: persisting the outcome is the caller's job.
type Dispatcher struct {
	registry    *channel.Registry
	limiter     ratelimit.Limiter
	sendTimeout time.Duration
	logger      *slog.Logger
}

func New(registry *channel.Registry, limiter ratelimit.Limiter, sendTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		limiter:     limiter,
		sendTimeout: sendTimeout,
		logger:      slog.Default(),
	}
}

// Dispatch resolves the recipient address, consults the rate limiter, and
// calls the channel's adapter. Order matters: an unresolvable address must
// not consume a rate-limit slot or touch any provider.
func (d *Dispatcher) Dispatch(ctx context.Context, contact model.Contact, ch model.Channel, content string, attachments []string, idempotencyKey string) channel.Result {
	to := ResolveAddress(contact, ch)
	if to == "" {
		return channel.Failed(channel.KindNoRecipient,
			fmt.Sprintf("contact %d has no %s address", contact.ID, addressField(ch)))
	}

	limited, err := d.limiter.Limited(ctx, RateKey(contact.ID, ch), RateClass(ch))
	if err != nil {
		// Limiter infrastructure failing should not block deliveries;
		// fail open and keep going.
		d.logger.Warn("rate limiter unavailable, allowing send",
			"contact_id", contact.ID, "channel", string(ch), "error", err)
	}
	if limited {
		return channel.Failed(channel.KindRateLimited,
			fmt.Sprintf("rate limit reached for contact %d on %s", contact.ID, ch))
	}

	sender, ok := d.registry.Resolve(ch)
	if !ok {
		return channel.Failed(channel.KindNoIntegration,
			fmt.Sprintf("no integration available for channel %s", ch))
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	return sender.Send(sendCtx, channel.SendRequest{
		To:             to,
		Content:        content,
		Attachments:    attachments,
		IdempotencyKey: idempotencyKey,
	})
}

// ResolveAddress picks the channel-appropriate address from a contact.
// WhatsApp falls back to the plain phone number when no dedicated WhatsApp
// number is on file.
func ResolveAddress(c model.Contact, ch model.Channel) string {
	switch ch {
	case model.ChannelSMS, model.ChannelVoice:
		return c.Phone
	case model.ChannelWhatsApp:
		if c.Whatsapp != "" {
			return c.Whatsapp
		}
		return c.Phone
	case model.ChannelEmail:
		return c.Email
	default:
		return ""
	}
}

// RateClass maps a channel onto its configured limit class.
func RateClass(ch model.Channel) string {
	switch ch {
	case model.ChannelSMS:
		return "sms"
	case model.ChannelWhatsApp:
		return "whatsapp"
	case model.ChannelEmail:
		return "email"
	default:
		return "api"
	}
}

// RateKey is the per-contact limiter key a send on the given channel
// consumes.
func RateKey(contactID int64, ch model.Channel) string {
	return fmt.Sprintf("%d:%s", contactID, strings.ToLower(string(ch)))
}

func addressField(ch model.Channel) string {
	switch ch {
	case model.ChannelSMS, model.ChannelVoice:
		return "phone"
	case model.ChannelWhatsApp:
		return "whatsapp/phone"
	case model.ChannelEmail:
		return "email"
	default:
		return "address"
	}
}
