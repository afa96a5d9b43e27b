package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "wamirror/internal/errors"
	"wamirror/internal/models"
)

// stallingStore blocks every write until the caller's context ends.
type stallingStore struct {
	*Memory
}

func (s stallingStore) UpsertOnID(ctx context.Context, _ MessageDelta) (*models.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s stallingStore) AppendStatus(ctx context.Context, _ string, _ StatusUpdate) (*models.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithTimeout_StalledCallFailsWithTimeout(t *testing.T) {
	s := WithTimeout(stallingStore{NewMemory()}, 50*time.Millisecond)

	start := time.Now()
	msg, err := s.AppendStatus(context.Background(), "m1", StatusUpdate{Status: "read"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, msg)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTimeout), "got %v", err)
	assert.Less(t, elapsed, 2*time.Second)

	_, err = s.UpsertOnID(context.Background(), inboundDelta("m2", "777", "hi", baseTime))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTimeout), "got %v", err)
}

func TestWithTimeout_PassesThroughWithinBudget(t *testing.T) {
	s := WithTimeout(NewMemory(), time.Second)
	ctx := context.Background()

	_, err := s.UpsertOnID(ctx, inboundDelta("m1", "777", "hi", baseTime))
	require.NoError(t, err)

	msgs, err := s.FindByContact(ctx, "777")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.NoError(t, s.Ping(ctx))
}

func TestWithTimeout_CallerCancellationIsNotATimeout(t *testing.T) {
	s := WithTimeout(stallingStore{NewMemory()}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AppendStatus(ctx, "m1", StatusUpdate{Status: "read"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperrors.HasCode(err, apperrors.ErrCodeTimeout))
}
