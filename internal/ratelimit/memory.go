package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLimiter keeps per-key request timestamps in process memory.
// Correct for a single instance; a multi-process deployment must use the
// Redis limiter so all instances share one quota.
type MemoryLimiter struct {
	classes map[string]Class

	mu   sync.Mutex
	hits map[string][]time.Time

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

func NewMemoryLimiter(classes map[string]Class, sweepInterval time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		classes: classes,
		hits:    make(map[string][]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.sweepLoop(sweepInterval)
	return m
}

// Close stops the background sweep. Safe to call more than once.
func (m *MemoryLimiter) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *MemoryLimiter) Limited(_ context.Context, key, class string) (bool, error) {
	c, ok := m.classes[class]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := bucketKey(key, class)
	kept := pruneBefore(m.hits[k], now.Add(-c.Window))

	if len(kept) >= c.Max {
		m.hits[k] = kept
		return true, nil
	}

	m.hits[k] = append(kept, now)
	return false, nil
}

func (m *MemoryLimiter) Remaining(_ context.Context, key, class string) (Remaining, error) {
	c, ok := m.classes[class]
	if !ok {
		return Remaining{}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := bucketKey(key, class)
	kept := pruneBefore(m.hits[k], now.Add(-c.Window))
	m.hits[k] = kept

	rem := c.Max - len(kept)
	if rem < 0 {
		rem = 0
	}

	resetAt := now
	if len(kept) > 0 {
		resetAt = kept[0].Add(c.Window)
	}

	return Remaining{Count: rem, ResetAt: resetAt}, nil
}

func (m *MemoryLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep drops keys whose every timestamp has aged out of its window,
// bounding memory growth for one-off keys.
func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, stamps := range m.hits {
		class, ok := m.classes[classOf(k)]
		if !ok {
			delete(m.hits, k)
			continue
		}
		if len(pruneBefore(stamps, now.Add(-class.Window))) == 0 {
			delete(m.hits, k)
		}
	}
}

func bucketKey(key, class string) string {
	return class + "|" + key
}

func classOf(bucket string) string {
	for i := 0; i < len(bucket); i++ {
		if bucket[i] == '|' {
			return bucket[:i]
		}
	}
	return bucket
}

// pruneBefore drops timestamps older than cutoff. Stamps are appended in
// order, so the first kept index is a simple scan.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[i:]...)
}
