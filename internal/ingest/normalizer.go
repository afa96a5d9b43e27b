package ingest

import (
	"time"

	apperrors "wamirror/internal/errors"
	"wamirror/internal/models"
	"wamirror/internal/store"
)

var (
	messageIDFields = []string{"id", "message_id", "mid", "_id"}
	statusIDFields  = []string{"meta_msg_id", "id", "message_id"}
	businessFields  = []string{"display_phone_number", "phone_number", "phone_number_id"}
)

// Normalizer maps one message unit to a canonical upsert delta.
type Normalizer struct {
	businessNumber string
	now            func() time.Time
}

// NewNormalizer creates a Normalizer. businessNumber is only used when a
// payload's metadata declares no business number of its own.
func NewNormalizer(businessNumber string, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{businessNumber: businessNumber, now: now}
}

// Normalize builds the delta for unit. envelope is stored verbatim as the raw payload.
func (n *Normalizer) Normalize(unit, envelope map[string]any, contacts []any, metadata map[string]any) (*store.MessageDelta, error) {
	messageID, ok := firstString(unit, messageIDFields...)
	if !ok {
		return nil, apperrors.NewMissingIdentifierError("message", messageIDFields)
	}

	var contactID, contactName *string
	if len(contacts) > 0 {
		// A present contact is authoritative even when its wa_id is missing.
		contact, _ := contacts[0].(map[string]any)
		if id, ok := firstString(contact, "wa_id"); ok {
			contactID = &id
		}
		if name, ok := firstString(object(contact, "profile"), "name"); ok {
			contactName = &name
		} else if name, ok := firstString(contact, "name"); ok {
			contactName = &name
		}
	} else if id, ok := firstString(unit, "from", "to"); ok {
		contactID = &id
	}

	direction := n.direction(unit, metadata)

	status, ok := firstString(unit, "status")
	if !ok {
		status = models.StatusReceived
		if direction == models.DirectionOutbound {
			status = models.StatusSent
		}
	}

	now := n.now().UTC()
	return &store.MessageDelta{
		Record: models.Message{
			MessageID:     messageID,
			ContactID:     contactID,
			ContactName:   contactName,
			Text:          messageText(unit),
			Timestamp:     messageTimestamp(unit),
			Direction:     direction,
			Status:        status,
			StatusHistory: []models.StatusEntry{},
			CreatedAt:     now,
		},
		RawPayload: envelope,
		TouchedAt:  now,
	}, nil
}

func (n *Normalizer) direction(unit, metadata map[string]any) models.Direction {
	business, ok := firstString(metadata, businessFields...)
	if !ok {
		business = n.businessNumber
	}
	from, ok := firstString(unit, "from")
	if business != "" && ok && from == business {
		return models.DirectionOutbound
	}
	return models.DirectionInbound
}

func messageText(unit map[string]any) *string {
	if body, ok := firstString(object(unit, "text"), "body"); ok {
		return &body
	}
	if text, ok := unit["text"].(string); ok && text != "" {
		return &text
	}
	if body, ok := firstString(unit, "body"); ok {
		return &body
	}
	return nil
}

func messageTimestamp(unit map[string]any) *time.Time {
	if ts := parseUnixSeconds(unit["timestamp"]); ts != nil {
		return ts
	}
	return parseEpochMillis(unit["timestamp_ms"])
}
