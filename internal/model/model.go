package model

import "time"

// Channel is one outbound communication medium.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelEmail    Channel = "EMAIL"
	ChannelTwitter  Channel = "TWITTER"
	ChannelFacebook Channel = "FACEBOOK"
	ChannelVoice    Channel = "VOICE"
)

// SchedulableChannels are the only channels a ScheduledMessage may use.
var SchedulableChannels = []Channel{ChannelSMS, ChannelWhatsApp, ChannelEmail}

func (c Channel) Schedulable() bool {
	for _, s := range SchedulableChannels {
		if c == s {
			return true
		}
	}
	return false
}

type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

type MessageStatus string

const (
	MessagePending   MessageStatus = "PENDING"
	MessageSent      MessageStatus = "SENT"
	MessageDelivered MessageStatus = "DELIVERED"
	MessageRead      MessageStatus = "READ"
	MessageFailed    MessageStatus = "FAILED"
	// MessageQueued marks a FAILED row claimed by the retry loop while a
	// provider call is in flight.
	MessageQueued MessageStatus = "QUEUED"
)

type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "PENDING"
	ScheduledSent      ScheduledStatus = "SENT"
	ScheduledFailed    ScheduledStatus = "FAILED"
	ScheduledCancelled ScheduledStatus = "CANCELLED"
)

// Message is an intent-to-deliver record and its outcome. Rows are never
// deleted by the delivery pipeline.
type Message struct {
	ID             int64
	ContactID      int64
	UserID         *int64
	Channel        Channel
	Direction      Direction
	Status         MessageStatus
	Content        string
	Attachments    []string
	ExternalID     *string
	RetryCount     int
	FailureReason  *string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SentAt         *time.Time
	DeliveredAt    *time.Time
	ReadAt         *time.Time
}

// ScheduledMessage is a one-shot future send intent. PENDING is its only
// non-terminal status; a FAILED row is never retried automatically.
type ScheduledMessage struct {
	ID           int64
	ContactID    int64
	UserID       int64
	Channel      Channel
	Content      string
	ScheduledAt  time.Time
	Status       ScheduledStatus
	SentAt       *time.Time
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contact is the slice of the CRM contact record the pipeline needs.
type Contact struct {
	ID              int64
	Phone           string
	Whatsapp        string
	Email           string
	LastContactedAt *time.Time
}
