package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"wamirror/internal/security"
)

var sqliteDialect = dialect{
	name:       "sqlite",
	driverName: "sqlite3",
	upsert: `INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			raw_payload = excluded.raw_payload,
			updated_at = excluded.updated_at
		RETURNING ` + messageColumns,
	appendStatus: `UPDATE messages SET
			status = ?,
			updated_at = ?,
			raw_payload = ?,
			status_history = json_insert(status_history, '$[#]', json(?))
		WHERE message_id = ?
		RETURNING ` + messageColumns,
	insertIfAbsent: `INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
		RETURNING ` + messageColumns,
	findByContact: `SELECT ` + messageColumns + `
		FROM messages
		WHERE wa_id = ?
		ORDER BY event_time ASC, created_at ASC`,
	latestPerContact: `SELECT wa_id, first_name, body, event_time, status FROM (
			SELECT wa_id, body, event_time, status,
				FIRST_VALUE(contact_name) OVER (PARTITION BY wa_id ORDER BY event_time ASC, created_at ASC) AS first_name,
				ROW_NUMBER() OVER (PARTITION BY wa_id ORDER BY event_time DESC, created_at DESC) AS rn
			FROM messages
		) AS ranked
		WHERE rn = 1
		ORDER BY event_time DESC`,
	isTransient: isSQLiteTransient,
}

// OpenSQLite opens (creating if needed) the database file at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, encrypt bool, logger *logrus.Logger) (*SQLStore, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	return openSQL(ctx, sqliteDialect, dsn, encrypt, logger)
}

func isSQLiteTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return true
		}
		return false
	}
	return isTransientMessage(err) || (err != nil && strings.Contains(err.Error(), "database is locked"))
}
