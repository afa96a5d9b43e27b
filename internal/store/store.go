// Package store persists canonical message records keyed by message id.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
	apperrors "wamirror/internal/errors"
	"wamirror/internal/models"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// MessageDelta is an idempotent upsert of a message unit. Record is written
// only when the message id is new. RawPayload and TouchedAt are written on
// every delivery.
type MessageDelta struct {
	Record     models.Message
	RawPayload map[string]any
	TouchedAt  time.Time
}

// StatusUpdate replaces a message's current status and appends Entry to its history.
type StatusUpdate struct {
	Status     string
	Entry      models.StatusEntry
	RawPayload map[string]any
	TouchedAt  time.Time
}

// Store is the persistence contract for message records. Every method is a
// single atomic operation against the backend so that concurrent deliveries
// of the same id never lose history entries.
type Store interface {
	// UpsertOnID inserts delta.Record when its id is absent, otherwise it only
	// refreshes raw payload and updatedAt. Returns the stored record.
	UpsertOnID(ctx context.Context, delta MessageDelta) (*models.Message, error)
	// AppendStatus updates an existing record. Returns nil, nil when no record has the id.
	AppendStatus(ctx context.Context, messageID string, update StatusUpdate) (*models.Message, error)
	// InsertIfAbsent inserts msg unless the id exists. inserted is false when it did.
	InsertIfAbsent(ctx context.Context, msg *models.Message) (stored *models.Message, inserted bool, err error)
	// FindByContact returns one contact's messages, oldest first.
	FindByContact(ctx context.Context, contactID string) ([]*models.Message, error)
	// LatestPerContact returns one summary per contact, most recent first.
	LatestPerContact(ctx context.Context) ([]models.ConversationSummary, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the configured backend wrapped with per-operation timeouts.
func Open(ctx context.Context, cfg models.StoreConfig, logger *logrus.Logger) (Store, error) {
	var (
		backend Store
		err     error
	)

	switch cfg.Driver {
	case "", DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = constants.DefaultSQLitePath
		}
		backend, err = OpenSQLite(ctx, path, cfg.EncryptPayloads, logger)
	case DriverPostgres:
		backend, err = OpenPostgres(ctx, cfg.DSN, cfg.EncryptPayloads, logger)
	case DriverMongo:
		backend, err = OpenMongo(ctx, MongoOptions{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		}, logger)
	case DriverMemory:
		backend = NewMemory()
	default:
		return nil, apperrors.NewConfigError("store.driver", fmt.Sprintf("unsupported store driver %q", cfg.Driver))
	}
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultStoreTimeoutMs) * time.Millisecond
	}
	return WithTimeout(backend, timeout), nil
}
