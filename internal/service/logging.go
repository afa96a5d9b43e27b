package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"wamirror/internal/privacy"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx so that identifiers are logged unmasked.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SafeFields masks identifiers and hides content unless ctx is verbose.
func SafeFields(ctx context.Context, fields logrus.Fields) logrus.Fields {
	if IsVerboseLogging(ctx) {
		return fields
	}
	return privacy.MaskSensitiveFields(fields)
}

// LogWithContext returns an entry carrying fields, masked per SafeFields.
func LogWithContext(ctx context.Context, logger *logrus.Logger, fields logrus.Fields) *logrus.Entry {
	return logger.WithContext(ctx).WithFields(SafeFields(ctx, fields))
}
