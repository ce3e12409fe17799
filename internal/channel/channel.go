package channel

import "context"

// FailureKind classifies a failed send so callers can decide retry
// eligibility without re-deriving it from error text.
type FailureKind string

const (
	KindNone          FailureKind = ""
	KindConfiguration FailureKind = "configuration"
	KindNoRecipient   FailureKind = "no_recipient"
	KindNoIntegration FailureKind = "no_integration"
	KindProvider      FailureKind = "provider"
	KindRateLimited   FailureKind = "rate_limited"
)

// Retryable reports whether a failure of this kind may succeed on a later
// attempt. Missing recipients and missing integrations are terminal;
// configuration failures are formally retryable and simply exhaust the
// budget until an operator fixes the config.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindNoRecipient, KindNoIntegration:
		return false
	default:
		return true
	}
}

// SendRequest is the provider-agnostic input to a send attempt. The
// idempotency key is minted once per message and reused across retries so
// at-least-once delivery stays deduplicable at the provider.
type SendRequest struct {
	To             string
	Content        string
	Attachments    []string
	IdempotencyKey string
}

// Result is the discriminated outcome of a send attempt. Ordinary
// provider-side failures (auth, invalid recipient, provider throttling) and
// configuration problems are reported here, never as a panic.
type Result struct {
	Success    bool
	ExternalID string
	Kind       FailureKind
	Err        string
}

func Sent(externalID string) Result {
	return Result{Success: true, ExternalID: externalID}
}

func Failed(kind FailureKind, err string) Result {
	return Result{Kind: kind, Err: err}
}

// Sender is the contract every provider adapter satisfies.
type Sender interface {
	Send(ctx context.Context, req SendRequest) Result
}

// InboundMessage is a provider webhook payload normalized for the inbound
// path.
type InboundMessage struct {
	From        string
	Content     string
	Attachments []string
	ExternalID  string
}

// WebhookValidator is implemented by adapters whose provider signs inbound
// webhooks. The inbound path lives outside the delivery pipeline; only the
// contract shape is defined here.
type WebhookValidator interface {
	ValidateWebhook(payload []byte, signature string) bool
}

// InboundProcessor is implemented by adapters that can normalize inbound
// provider payloads.
type InboundProcessor interface {
	ProcessInbound(payload []byte) (InboundMessage, error)
}
