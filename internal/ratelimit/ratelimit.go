package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Class is one named limit: at most Max requests per rolling Window.
type Class struct {
	Window time.Duration
	Max    int
}

// Remaining is the read-only view of a key's budget.
type Remaining struct {
	Count   int
	ResetAt time.Time
}

// Limiter bounds request volume per key per class over a rolling window.
//
// Limited is a combined check-and-record: it returns false and records the
// request when the key is under its class limit, true (nothing recorded)
// when the limit is already reached. Implementations must make that pair
// atomic so two near-simultaneous callers cannot both slip under the limit.
type Limiter interface {
	Limited(ctx context.Context, key, class string) (bool, error)
	Remaining(ctx context.Context, key, class string) (Remaining, error)
}

// ErrUnknownClass is wrapped by limiters when asked about an unconfigured
// class name.
var ErrUnknownClass = fmt.Errorf("ratelimit: unknown class")
