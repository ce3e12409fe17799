package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calloutcrm/delivery/internal/model"
)

// RedisSink publishes sent-message events as TTL'd records, keyed by
// message id, for the analytics aggregator to pick up.
type RedisSink struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSink(rdb *redis.Client, ttl time.Duration) *RedisSink {
	return &RedisSink{rdb: rdb, ttl: ttl}
}

type sentEvent struct {
	MessageID  int64     `json:"messageId"`
	ContactID  int64     `json:"contactId"`
	Channel    string    `json:"channel"`
	ExternalID string    `json:"externalId,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

func (s *RedisSink) MessageSent(ctx context.Context, m model.Message) error {
	ev := sentEvent{
		MessageID: m.ID,
		ContactID: m.ContactID,
		Channel:   string(m.Channel),
	}
	if m.ExternalID != nil {
		ev.ExternalID = *m.ExternalID
	}
	if m.SentAt != nil {
		ev.SentAt = m.SentAt.UTC()
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("sent:%d", m.ID)
	return s.rdb.Set(ctx, key, b, s.ttl).Err()
}

var _ EventSink = (*RedisSink)(nil)
