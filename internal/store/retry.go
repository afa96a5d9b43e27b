package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
	apperrors "wamirror/internal/errors"
	"wamirror/internal/retry"
)

func dbBackoff(logger *logrus.Logger, operationName string) *retry.Backoff {
	cfg := retry.DefaultBackoffConfig()
	cfg.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	cfg.InitialDelay = 50 * time.Millisecond
	cfg.MaxDelay = time.Second

	return retry.NewBackoff(cfg).OnRetry(func(attempt int, delay time.Duration, err error) {
		logger.WithFields(logrus.Fields{
			"operation": operationName,
			"attempt":   attempt,
			"delay":     delay.String(),
			"error":     err.Error(),
		}).Warn("Transient database error, retrying")
	})
}

// retryableDBOperation runs operation until it succeeds, fails permanently or
// runs out of attempts. Failures are wrapped as store errors.
func retryableDBOperation(ctx context.Context, logger *logrus.Logger, operationName string, isTransient func(error) bool, operation func() error) error {
	err := dbBackoff(logger, operationName).RetryWithPredicate(ctx, operation, isTransient)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.NewStoreError(operationName, err, isTransient(err))
}

// isTransientMessage matches driver-agnostic connectivity failures.
func isTransientMessage(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()
	for _, fragment := range []string{"connection refused", "connection reset", "no such host", "broken pipe", "bad connection"} {
		if strings.Contains(errStr, fragment) {
			return true
		}
	}
	return false
}
