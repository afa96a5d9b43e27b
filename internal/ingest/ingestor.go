// Package ingest turns webhook payloads into canonical message records.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	apperrors "wamirror/internal/errors"
	"wamirror/internal/metrics"
	"wamirror/internal/models"
	"wamirror/internal/notify"
	"wamirror/internal/service"
	"wamirror/internal/store"
	"wamirror/internal/tracing"
)

// Config tunes an Ingestor.
type Config struct {
	// BusinessNumber is the fallback business identifier for payloads whose
	// metadata declares none. Empty keeps such messages inbound.
	BusinessNumber string
	Now            func() time.Time
}

// IngestReport counts unit outcomes for one payload.
type IngestReport struct {
	Shape        string `json:"shape"`
	Messages     int    `json:"messages"`
	Statuses     int    `json:"statuses"`
	Placeholders int    `json:"placeholders"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
}

// Units is the number of units seen, whatever their outcome.
func (r IngestReport) Units() int {
	return r.Messages + r.Statuses + r.Placeholders + r.Skipped + r.Failed
}

func (r *IngestReport) add(other IngestReport) {
	r.Messages += other.Messages
	r.Statuses += other.Statuses
	r.Placeholders += other.Placeholders
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// Ingestor walks payloads and dispatches each unit in document order. Unit
// failures are logged and counted, never returned.
type Ingestor struct {
	normalizer *Normalizer
	reconciler *Reconciler
	store      store.Store
	notifier   notify.Notifier
	logger     *logrus.Logger
	errLogger  *apperrors.Logger
}

func New(st store.Store, notifier notify.Notifier, logger *logrus.Logger, cfg Config) *Ingestor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ingestor{
		normalizer: NewNormalizer(cfg.BusinessNumber, cfg.Now),
		reconciler: NewReconciler(st, cfg.Now),
		store:      st,
		notifier:   notifier,
		logger:     logger,
		errLogger:  apperrors.NewLogger(logger),
	}
}

// IngestJSON decodes body and ingests it. Only a body that is not a JSON
// object is an error; source names the origin for logs.
func (i *Ingestor) IngestJSON(ctx context.Context, source string, body []byte) (IngestReport, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return IngestReport{}, apperrors.NewMalformedPayloadError(source, err)
	}
	if payload == nil {
		return IngestReport{}, apperrors.NewMalformedPayloadError(source, errors.New("payload is null"))
	}
	return i.Ingest(ctx, payload), nil
}

// Ingest processes every message and status unit of payload.
func (i *Ingestor) Ingest(ctx context.Context, payload map[string]any) IngestReport {
	ctx, span := tracing.StartSpan(ctx, "ingest.payload")
	defer span.End()
	start := time.Now()

	shape, entries := classifyPayload(payload)
	report := IngestReport{Shape: shape.String()}

	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		for _, change := range array(entry, "changes") {
			value, ok := changeValue(change)
			if !ok {
				continue
			}
			report.add(i.ingestValue(ctx, value, payload))
		}
	}

	span.SetAttributes(
		attribute.String("ingest.shape", report.Shape),
		attribute.Int("ingest.units", report.Units()),
		attribute.Int("ingest.failed", report.Failed),
	)
	metrics.RecordTimer("ingest_payload_duration", time.Since(start), map[string]string{"shape": report.Shape}, "Payload ingest latency")

	i.logger.WithFields(logrus.Fields{
		service.LogFieldShape:    report.Shape,
		"messages":               report.Messages,
		"statuses":               report.Statuses,
		"placeholders":           report.Placeholders,
		"skipped":                report.Skipped,
		"failed":                 report.Failed,
		service.LogFieldDuration: time.Since(start).Milliseconds(),
	}).Info("Completed payload ingest")

	return report
}

func (i *Ingestor) ingestValue(ctx context.Context, value, envelope map[string]any) IngestReport {
	var report IngestReport
	contacts := array(value, "contacts")
	metadata := object(value, "metadata")

	for _, m := range array(value, "messages") {
		unit, ok := m.(map[string]any)
		if !ok {
			report.Skipped++
			continue
		}
		i.ingestMessage(ctx, unit, envelope, contacts, metadata, &report)
	}

	for _, s := range array(value, "statuses") {
		unit, ok := s.(map[string]any)
		if !ok {
			report.Skipped++
			continue
		}
		i.ingestStatus(ctx, unit, envelope, metadata, &report)
	}

	if isSingularStatus(value) {
		i.ingestStatus(ctx, value, envelope, metadata, &report)
	}

	return report
}

func (i *Ingestor) ingestMessage(ctx context.Context, unit, envelope map[string]any, contacts []any, metadata map[string]any, report *IngestReport) {
	ctx, span := tracing.StartSpan(ctx, "ingest.message")
	defer span.End()

	delta, err := i.normalizer.Normalize(unit, envelope, contacts, metadata)
	if err != nil {
		report.Skipped++
		i.unitFailed(ctx, "message", "", "skipped", err)
		return
	}
	messageID := delta.Record.MessageID
	span.SetAttributes(attribute.String("message.direction", string(delta.Record.Direction)))

	msg, err := i.store.UpsertOnID(ctx, *delta)
	if err != nil {
		report.Failed++
		tracing.RecordError(ctx, err)
		i.unitFailed(ctx, "message", messageID, "failed", err)
		return
	}

	report.Messages++
	i.unitDone(ctx, "message", "stored", logrus.Fields{
		service.LogFieldMessageID: messageID,
		service.LogFieldContactID: msg.ContactKey(),
		service.LogFieldDirection: string(msg.Direction),
		service.LogFieldStatus:    msg.Status,
	})
	i.notify(ctx, models.EventMessageCreated, msg)
}

func (i *Ingestor) ingestStatus(ctx context.Context, unit, envelope, metadata map[string]any, report *IngestReport) {
	ctx, span := tracing.StartSpan(ctx, "ingest.status")
	defer span.End()

	result, err := i.reconciler.Reconcile(ctx, unit, envelope, metadata)
	if err != nil {
		outcome := "failed"
		if apperrors.HasCode(err, apperrors.ErrCodeMissingIdentifier) {
			outcome = "skipped"
			report.Skipped++
		} else {
			report.Failed++
			tracing.RecordError(ctx, err)
		}
		id, _ := firstString(unit, statusIDFields...)
		i.unitFailed(ctx, "status", id, outcome, err)
		return
	}

	switch result.Outcome {
	case OutcomePlaceholder:
		report.Placeholders++
	default:
		report.Statuses++
	}
	span.SetAttributes(attribute.String("status.outcome", string(result.Outcome)))

	i.unitDone(ctx, "status", string(result.Outcome), logrus.Fields{
		service.LogFieldMessageID: result.Message.MessageID,
		service.LogFieldStatus:    result.Message.Status,
	})
	i.notify(ctx, models.EventStatusChanged, models.StatusChange{
		MessageID: result.Message.MessageID,
		Status:    result.Message.Status,
	})
}

func (i *Ingestor) notify(ctx context.Context, event string, payload any) {
	if err := i.notifier.Notify(ctx, event, payload); err != nil {
		metrics.IncrementCounter("notifier_errors_total", map[string]string{"event": event}, "Failed event notifications")
		i.errLogger.LogWarn(err, "Failed to notify subscribers", logrus.Fields{service.LogFieldEvent: event})
	}
}

func (i *Ingestor) unitDone(ctx context.Context, unit, outcome string, fields logrus.Fields) {
	metrics.IncrementCounter("ingest_units_total", map[string]string{"unit": unit, "outcome": outcome}, "Webhook units by outcome")
	fields[service.LogFieldUnit] = unit
	fields[service.LogFieldOutcome] = outcome
	service.LogWithContext(ctx, i.logger, fields).Debug("Processed webhook unit")
}

func (i *Ingestor) unitFailed(ctx context.Context, unit, messageID, outcome string, err error) {
	metrics.IncrementCounter("ingest_units_total", map[string]string{"unit": unit, "outcome": outcome}, "Webhook units by outcome")
	fields := logrus.Fields{
		service.LogFieldUnit:    unit,
		service.LogFieldOutcome: outcome,
	}
	if messageID != "" {
		fields[service.LogFieldMessageID] = messageID
	}
	i.errLogger.LogRetryableError(err, "Skipping webhook unit", service.SafeFields(ctx, fields))
}
