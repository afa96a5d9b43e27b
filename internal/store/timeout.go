package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "wamirror/internal/errors"
	"wamirror/internal/metrics"
	"wamirror/internal/models"
	"wamirror/internal/tracing"
)

// timeoutStore bounds every backend call with a deadline and records a span
// and latency timer per operation.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps next so that each operation is cancelled after timeout.
func WithTimeout(next Store, timeout time.Duration) Store {
	return &timeoutStore{next: next, timeout: timeout}
}

func (s *timeoutStore) begin(ctx context.Context, op string) (context.Context, func(error) error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	ctx, span := tracing.StartSpan(ctx, "store."+op, attribute.String("store.operation", op))
	start := time.Now()

	return ctx, func(err error) error {
		defer cancel()
		defer span.End()

		labels := map[string]string{"operation": op, "outcome": "ok"}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = apperrors.NewTimeoutError("store "+op, s.timeout.String())
			}
			labels["outcome"] = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.RecordTimer("store_operation_duration", time.Since(start), labels, "Store operation latency")
		return err
	}
}

func (s *timeoutStore) UpsertOnID(ctx context.Context, delta MessageDelta) (*models.Message, error) {
	ctx, done := s.begin(ctx, "upsert")
	msg, err := s.next.UpsertOnID(ctx, delta)
	return msg, done(err)
}

func (s *timeoutStore) AppendStatus(ctx context.Context, messageID string, update StatusUpdate) (*models.Message, error) {
	ctx, done := s.begin(ctx, "append_status")
	msg, err := s.next.AppendStatus(ctx, messageID, update)
	return msg, done(err)
}

func (s *timeoutStore) InsertIfAbsent(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	ctx, done := s.begin(ctx, "insert_if_absent")
	stored, inserted, err := s.next.InsertIfAbsent(ctx, msg)
	return stored, inserted, done(err)
}

func (s *timeoutStore) FindByContact(ctx context.Context, contactID string) ([]*models.Message, error) {
	ctx, done := s.begin(ctx, "find_by_contact")
	msgs, err := s.next.FindByContact(ctx, contactID)
	return msgs, done(err)
}

func (s *timeoutStore) LatestPerContact(ctx context.Context) ([]models.ConversationSummary, error) {
	ctx, done := s.begin(ctx, "latest_per_contact")
	summaries, err := s.next.LatestPerContact(ctx)
	return summaries, done(err)
}

func (s *timeoutStore) Ping(ctx context.Context) error {
	ctx, done := s.begin(ctx, "ping")
	return done(s.next.Ping(ctx))
}

func (s *timeoutStore) Close() error {
	return s.next.Close()
}
