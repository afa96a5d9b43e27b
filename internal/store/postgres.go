package store

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	apperrors "wamirror/internal/errors"
)

var postgresDialect = dialect{
	name:       "postgres",
	driverName: "postgres",
	upsert: `INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11)
		ON CONFLICT (message_id) DO UPDATE SET
			raw_payload = EXCLUDED.raw_payload,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + messageColumns,
	appendStatus: `UPDATE messages SET
			status = $1,
			updated_at = $2,
			raw_payload = $3,
			status_history = status_history || jsonb_build_array($4::jsonb)
		WHERE message_id = $5
		RETURNING ` + messageColumns,
	insertIfAbsent: `INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING ` + messageColumns,
	findByContact: `SELECT ` + messageColumns + `
		FROM messages
		WHERE wa_id = $1
		ORDER BY event_time ASC NULLS FIRST, created_at ASC`,
	latestPerContact: `SELECT wa_id, first_name, body, event_time, status FROM (
			SELECT wa_id, body, event_time, status,
				FIRST_VALUE(contact_name) OVER (PARTITION BY wa_id ORDER BY event_time ASC NULLS FIRST, created_at ASC) AS first_name,
				ROW_NUMBER() OVER (PARTITION BY wa_id ORDER BY event_time DESC NULLS LAST, created_at DESC) AS rn
			FROM messages
		) AS ranked
		WHERE rn = 1
		ORDER BY event_time DESC NULLS LAST`,
	isTransient: isPostgresTransient,
}

// OpenPostgres connects to dsn and applies migrations.
func OpenPostgres(ctx context.Context, dsn string, encrypt bool, logger *logrus.Logger) (*SQLStore, error) {
	if dsn == "" {
		return nil, apperrors.NewConfigError("store.dsn", "postgres driver requires a DSN")
	}

	s, err := openSQL(ctx, postgresDialect, dsn, encrypt, logger)
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(16)
	s.db.SetMaxIdleConns(4)
	return s, nil
}

func isPostgresTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return errors.Is(err, driver.ErrBadConn) || isTransientMessage(err)
}
