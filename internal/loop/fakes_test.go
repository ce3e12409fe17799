package loop

import (
	"context"
	"sync"
	"time"

	"github.com/calloutcrm/delivery/internal/channel"
	"github.com/calloutcrm/delivery/internal/dispatch"
	"github.com/calloutcrm/delivery/internal/model"
	"github.com/calloutcrm/delivery/internal/ratelimit"
	"github.com/calloutcrm/delivery/internal/repo"
)

type fakeContactStore struct {
	mu       sync.Mutex
	contacts map[int64]model.Contact
	getErr   error
	touched  []int64
}

func newFakeContactStore(contacts ...model.Contact) *fakeContactStore {
	m := make(map[int64]model.Contact, len(contacts))
	for _, c := range contacts {
		m[c.ID] = c
	}
	return &fakeContactStore{contacts: m}
}

func (s *fakeContactStore) Get(_ context.Context, id int64) (model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return model.Contact{}, s.getErr
	}
	c, ok := s.contacts[id]
	if !ok {
		return model.Contact{}, repo.ErrNotFound
	}
	return c, nil
}

func (s *fakeContactStore) TouchLastContacted(_ context.Context, id int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

type scheduledTransition struct {
	id     int64
	status model.ScheduledStatus
	reason string
}

type fakeScheduledStore struct {
	mu          sync.Mutex
	due         []model.ScheduledMessage
	listErr     error
	markSentWon bool
	transitions []scheduledTransition
}

func newFakeScheduledStore(due ...model.ScheduledMessage) *fakeScheduledStore {
	return &fakeScheduledStore{due: due, markSentWon: true}
}

func (s *fakeScheduledStore) ListDue(_ context.Context, _ time.Time, limit int) ([]model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *fakeScheduledStore) MarkSent(_ context.Context, id int64, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.markSentWon {
		return false, nil
	}
	s.transitions = append(s.transitions, scheduledTransition{id: id, status: model.ScheduledSent})
	return true, nil
}

func (s *fakeScheduledStore) MarkFailed(_ context.Context, id int64, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, scheduledTransition{id: id, status: model.ScheduledFailed, reason: reason})
	return true, nil
}

type messageCall struct {
	op     string // "claim", "sent", "failed", "release", "exhaust"
	id     int64
	detail string
}

type fakeMessageStore struct {
	mu        sync.Mutex
	created   []model.Message
	createErr error
	retryable []model.Message
	listErr   error
	claimWon  bool
	calls     []messageCall
	nextMsgID int64
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{claimWon: true, nextMsgID: 100}
}

func (s *fakeMessageStore) Create(_ context.Context, m model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return model.Message{}, s.createErr
	}
	m.ID = s.nextMsgID
	s.nextMsgID++
	s.created = append(s.created, m)
	return m, nil
}

func (s *fakeMessageStore) ListFailedRetryable(_ context.Context, _, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.retryable) > limit {
		return s.retryable[:limit], nil
	}
	return s.retryable, nil
}

func (s *fakeMessageStore) ClaimForRetry(_ context.Context, id int64, observed int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messageCall{op: "claim", id: id})
	return s.claimWon, nil
}

func (s *fakeMessageStore) MarkSent(_ context.Context, id int64, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messageCall{op: "sent", id: id, detail: externalID})
	return nil
}

func (s *fakeMessageStore) MarkFailed(_ context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messageCall{op: "failed", id: id, detail: reason})
	return nil
}

func (s *fakeMessageStore) ReleaseClaim(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messageCall{op: "release", id: id})
	return nil
}

func (s *fakeMessageStore) Exhaust(_ context.Context, id int64, _ int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messageCall{op: "exhaust", id: id, detail: reason})
	return nil
}

func (s *fakeMessageStore) ListRecent(_ context.Context, _, _ int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, nil
}

func (s *fakeMessageStore) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.op
	}
	return out
}

type fakeSink struct {
	mu     sync.Mutex
	events []model.Message
	err    error
}

func (s *fakeSink) MessageSent(_ context.Context, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, m)
	return nil
}

type fakeSender struct {
	mu       sync.Mutex
	result   channel.Result
	requests []channel.SendRequest
}

func (s *fakeSender) Send(_ context.Context, req channel.SendRequest) channel.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.result
}

type fakeLimiter struct {
	limited bool
}

func (l *fakeLimiter) Limited(context.Context, string, string) (bool, error) {
	return l.limited, nil
}

func (l *fakeLimiter) Remaining(context.Context, string, string) (ratelimit.Remaining, error) {
	return ratelimit.Remaining{}, nil
}

// newDispatcher wires a dispatcher over one fake sender registered for the
// given channels.
func newDispatcher(sender channel.Sender, limiter ratelimit.Limiter, channels ...model.Channel) *dispatch.Dispatcher {
	reg := channel.NewRegistry()
	for _, ch := range channels {
		reg.Register(ch, sender)
	}
	return dispatch.New(reg, limiter, time.Second)
}
