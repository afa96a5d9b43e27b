package models

// Notifier event names
const (
	EventMessageCreated = "messageCreated"
	EventStatusChanged  = "statusChanged"
)

// StatusChange is the payload of an EventStatusChanged notification.
type StatusChange struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// Envelope is the frame pushed to real-time subscribers.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// SendRequest is the body of POST /api/send.
type SendRequest struct {
	ContactID   string `json:"wa_id"`
	ContactName string `json:"contactName,omitempty"`
	Text        string `json:"text"`
	Status      string `json:"status,omitempty"`
	MessageID   string `json:"messageId,omitempty"`
}
