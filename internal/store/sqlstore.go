package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wamirror/internal/migrations"
	"wamirror/internal/models"
)

// dialect holds the statements and error classification for one SQL engine.
type dialect struct {
	name             string
	driverName       string
	upsert           string
	appendStatus     string
	insertIfAbsent   string
	findByContact    string
	latestPerContact string
	isTransient      func(error) bool
}

const messageColumns = `message_id, wa_id, contact_name, body, event_time, direction, status, status_history, raw_payload, created_at, updated_at`

// SQLStore implements Store on database/sql. Status history lives in a JSON
// column that is appended in the same UPDATE that sets the status.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	cipher  *payloadCipher
	logger  *logrus.Logger
}

func openSQL(ctx context.Context, d dialect, dsn string, encrypt bool, logger *logrus.Logger) (*SQLStore, error) {
	cipher, err := newPayloadCipher(encrypt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payload encryption: %w", err)
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	applied, err := migrations.Apply(ctx, db, d.name)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if len(applied) > 0 {
		logger.WithFields(logrus.Fields{
			"dialect":  d.name,
			"versions": applied,
		}).Info("Applied schema migrations")
	}

	return &SQLStore{db: db, dialect: d, cipher: cipher, logger: logger}, nil
}

func (s *SQLStore) UpsertOnID(ctx context.Context, delta MessageDelta) (*models.Message, error) {
	record := delta.Record
	record.RawPayload = delta.RawPayload
	record.UpdatedAt = delta.TouchedAt
	if record.CreatedAt.IsZero() {
		record.CreatedAt = delta.TouchedAt
	}

	args, err := s.insertArgs(&record)
	if err != nil {
		return nil, err
	}

	var out *models.Message
	err = retryableDBOperation(ctx, s.logger, "upsert", s.dialect.isTransient, func() error {
		msg, err := s.scanMessage(s.db.QueryRowContext(ctx, s.dialect.upsert, args...))
		if err != nil {
			return err
		}
		out = msg
		return nil
	})
	return out, err
}

func (s *SQLStore) AppendStatus(ctx context.Context, messageID string, update StatusUpdate) (*models.Message, error) {
	raw, err := s.encodePayload(update.RawPayload)
	if err != nil {
		return nil, err
	}
	sealedEntry, err := s.cipher.sealEntry(update.Entry)
	if err != nil {
		return nil, err
	}
	entry, err := json.Marshal(sealedEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status entry: %w", err)
	}

	var out *models.Message
	err = retryableDBOperation(ctx, s.logger, "append_status", s.dialect.isTransient, func() error {
		row := s.db.QueryRowContext(ctx, s.dialect.appendStatus,
			update.Status, update.TouchedAt.UnixMilli(), raw, string(entry), messageID)
		msg, err := s.scanMessage(row)
		if errors.Is(err, sql.ErrNoRows) {
			out = nil
			return nil
		}
		if err != nil {
			return err
		}
		out = msg
		return nil
	})
	return out, err
}

func (s *SQLStore) InsertIfAbsent(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	args, err := s.insertArgs(msg)
	if err != nil {
		return nil, false, err
	}

	var (
		out      *models.Message
		inserted bool
	)
	err = retryableDBOperation(ctx, s.logger, "insert_if_absent", s.dialect.isTransient, func() error {
		stored, err := s.scanMessage(s.db.QueryRowContext(ctx, s.dialect.insertIfAbsent, args...))
		if errors.Is(err, sql.ErrNoRows) {
			out, inserted = nil, false
			return nil
		}
		if err != nil {
			return err
		}
		out, inserted = stored, true
		return nil
	})
	return out, inserted, err
}

func (s *SQLStore) FindByContact(ctx context.Context, contactID string) ([]*models.Message, error) {
	out := make([]*models.Message, 0)
	err := retryableDBOperation(ctx, s.logger, "find_by_contact", s.dialect.isTransient, func() error {
		rows, err := s.db.QueryContext(ctx, s.dialect.findByContact, contactID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			msg, err := s.scanMessage(rows)
			if err != nil {
				return err
			}
			out = append(out, msg)
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLStore) LatestPerContact(ctx context.Context) ([]models.ConversationSummary, error) {
	out := make([]models.ConversationSummary, 0)
	err := retryableDBOperation(ctx, s.logger, "latest_per_contact", s.dialect.isTransient, func() error {
		rows, err := s.db.QueryContext(ctx, s.dialect.latestPerContact)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				contactID, contactName, body sql.NullString
				eventTime                    sql.NullInt64
				status                       string
			)
			if err := rows.Scan(&contactID, &contactName, &body, &eventTime, &status); err != nil {
				return err
			}
			out = append(out, models.ConversationSummary{
				ContactID:     nullString(contactID),
				ContactName:   nullString(contactName),
				LastMessage:   nullString(body),
				LastTimestamp: fromMillis(eventTime),
				LastStatus:    status,
			})
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance tooling.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) insertArgs(msg *models.Message) ([]any, error) {
	history := msg.StatusHistory
	if history == nil {
		history = []models.StatusEntry{}
	}
	history, err := s.cipher.sealHistory(history)
	if err != nil {
		return nil, err
	}
	encodedHistory, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status history: %w", err)
	}
	raw, err := s.encodePayload(msg.RawPayload)
	if err != nil {
		return nil, err
	}

	return []any{
		msg.MessageID,
		stringArg(msg.ContactID),
		stringArg(msg.ContactName),
		stringArg(msg.Text),
		millisArg(msg.Timestamp),
		string(msg.Direction),
		msg.Status,
		string(encodedHistory),
		raw,
		msg.CreatedAt.UnixMilli(),
		msg.UpdatedAt.UnixMilli(),
	}, nil
}

func (s *SQLStore) encodePayload(payload map[string]any) (any, error) {
	if payload == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw payload: %w", err)
	}
	sealed, err := s.cipher.Encrypt(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt raw payload: %w", err)
	}
	return sealed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg                          models.Message
		contactID, contactName, body sql.NullString
		eventTime                    sql.NullInt64
		direction                    string
		history                      []byte
		raw                          sql.NullString
		createdAt, updatedAt         int64
	)

	if err := row.Scan(&msg.MessageID, &contactID, &contactName, &body, &eventTime,
		&direction, &msg.Status, &history, &raw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	msg.ContactID = nullString(contactID)
	msg.ContactName = nullString(contactName)
	msg.Text = nullString(body)
	msg.Timestamp = fromMillis(eventTime)
	msg.Direction = models.Direction(direction)
	msg.CreatedAt = time.UnixMilli(createdAt).UTC()
	msg.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	msg.StatusHistory = []models.StatusEntry{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &msg.StatusHistory); err != nil {
			return nil, fmt.Errorf("failed to decode status history for %s: %w", msg.MessageID, err)
		}
		if err := s.cipher.openHistory(msg.StatusHistory); err != nil {
			return nil, fmt.Errorf("failed to decrypt status history for %s: %w", msg.MessageID, err)
		}
	}

	if raw.Valid && raw.String != "" {
		plain, err := s.cipher.Decrypt(raw.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt raw payload for %s: %w", msg.MessageID, err)
		}
		if err := json.Unmarshal([]byte(plain), &msg.RawPayload); err != nil {
			return nil, fmt.Errorf("failed to decode raw payload for %s: %w", msg.MessageID, err)
		}
	}

	return &msg, nil
}

func stringArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func millisArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
