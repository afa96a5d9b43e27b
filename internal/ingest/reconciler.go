package ingest

import (
	"context"
	"errors"
	"time"

	apperrors "wamirror/internal/errors"
	"wamirror/internal/models"
	"wamirror/internal/store"
)

var errRecordVanished = errors.New("record missing after insert conflict")

// ReconcileOutcome tells how a status event was merged.
type ReconcileOutcome string

const (
	OutcomeMatched     ReconcileOutcome = "matched"
	OutcomePlaceholder ReconcileOutcome = "placeholder"
)

// ReconcileResult is the record a status event ended up in.
type ReconcileResult struct {
	Outcome ReconcileOutcome
	Message *models.Message
}

// Reconciler merges status events into existing records, creating an outbound
// placeholder when the referenced message has not been seen.
type Reconciler struct {
	store store.Store
	now   func() time.Time
}

func NewReconciler(st store.Store, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: st, now: now}
}

// Reconcile applies unit. The caller is responsible for notifying subscribers.
func (r *Reconciler) Reconcile(ctx context.Context, unit, envelope, metadata map[string]any) (*ReconcileResult, error) {
	messageID, ok := firstString(unit, statusIDFields...)
	if !ok {
		return nil, apperrors.NewMissingIdentifierError("status", statusIDFields)
	}

	// Provider vocabulary is passed through unvalidated.
	status, _ := asString(unit["status"])
	at := parseUnixSeconds(unit["timestamp"])
	now := r.now().UTC()

	update := store.StatusUpdate{
		Status:     status,
		Entry:      models.StatusEntry{Status: status, At: at, Raw: unit},
		RawPayload: envelope,
		TouchedAt:  now,
	}

	merged, err := r.store.AppendStatus(ctx, messageID, update)
	if err != nil {
		return nil, err
	}
	if merged != nil {
		return &ReconcileResult{Outcome: OutcomeMatched, Message: merged}, nil
	}

	placeholder := r.placeholder(messageID, update, unit, metadata)
	stored, inserted, err := r.store.InsertIfAbsent(ctx, placeholder)
	if err != nil {
		return nil, err
	}
	if inserted {
		return &ReconcileResult{Outcome: OutcomePlaceholder, Message: stored}, nil
	}

	// Another delivery created the record between the two calls.
	merged, err = r.store.AppendStatus(ctx, messageID, update)
	if err != nil {
		return nil, err
	}
	if merged == nil {
		return nil, apperrors.NewStoreError("append_status", errRecordVanished, false)
	}
	return &ReconcileResult{Outcome: OutcomeMatched, Message: merged}, nil
}

func (r *Reconciler) placeholder(messageID string, update store.StatusUpdate, unit, metadata map[string]any) *models.Message {
	var contactID *string
	if id, ok := firstString(unit, "recipient_id"); ok {
		contactID = &id
	} else if id, ok := firstString(metadata, "phone_number_id"); ok {
		contactID = &id
	}

	timestamp := update.Entry.At
	if timestamp == nil {
		ts := update.TouchedAt
		timestamp = &ts
	}

	return &models.Message{
		MessageID:     messageID,
		ContactID:     contactID,
		Timestamp:     timestamp,
		Direction:     models.DirectionOutbound,
		Status:        update.Status,
		StatusHistory: []models.StatusEntry{update.Entry},
		RawPayload:    update.RawPayload,
		CreatedAt:     update.TouchedAt,
		UpdatedAt:     update.TouchedAt,
	}
}
