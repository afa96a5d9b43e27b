package models

import (
	"time"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status labels assigned when the provider did not send one.
const (
	StatusSent     = "sent"
	StatusReceived = "received"
)

// StatusEntry is one element of a message's append-only status history.
type StatusEntry struct {
	Status string         `json:"status" bson:"status"`
	At     *time.Time     `json:"at" bson:"at"`
	Raw    map[string]any `json:"raw,omitempty" bson:"raw,omitempty"`
}

// Message is the canonical record every webhook unit normalizes into.
// MessageID is the reconciliation key.
type Message struct {
	MessageID     string         `json:"messageId" bson:"messageId"`
	ContactID     *string        `json:"wa_id" bson:"wa_id"`
	ContactName   *string        `json:"contactName" bson:"contactName"`
	Text          *string        `json:"text" bson:"text"`
	Timestamp     *time.Time     `json:"timestamp" bson:"timestamp"`
	Direction     Direction      `json:"direction" bson:"direction"`
	Status        string         `json:"status" bson:"status"`
	StatusHistory []StatusEntry  `json:"statusHistory" bson:"statusHistory"`
	RawPayload    map[string]any `json:"rawPayload,omitempty" bson:"rawPayload,omitempty"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// ThreadMessage is the projection served for a single conversation.
type ThreadMessage struct {
	MessageID   string     `json:"messageId"`
	ContactID   *string    `json:"wa_id"`
	Text        *string    `json:"text"`
	Timestamp   *time.Time `json:"timestamp"`
	Status      string     `json:"status"`
	Direction   Direction  `json:"direction"`
	ContactName *string    `json:"contactName"`
}

func (m *Message) Thread() ThreadMessage {
	return ThreadMessage{
		MessageID:   m.MessageID,
		ContactID:   m.ContactID,
		Text:        m.Text,
		Timestamp:   m.Timestamp,
		Status:      m.Status,
		Direction:   m.Direction,
		ContactName: m.ContactName,
	}
}

// ContactKey returns the contact id, or "" when the record has none.
func (m *Message) ContactKey() string {
	if m.ContactID == nil {
		return ""
	}
	return *m.ContactID
}

// ConversationSummary is the latest state of one contact's thread.
// ContactName comes from the earliest message, the rest from the latest.
type ConversationSummary struct {
	ContactID     *string    `json:"_id" bson:"_id"`
	ContactName   *string    `json:"contactName" bson:"contactName"`
	LastMessage   *string    `json:"lastMessage" bson:"lastMessage"`
	LastTimestamp *time.Time `json:"lastTimestamp" bson:"lastTimestamp"`
	LastStatus    string     `json:"lastStatus" bson:"lastStatus"`
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TimePtr returns nil for the zero time.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
