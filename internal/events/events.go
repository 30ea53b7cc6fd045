// Package events writes and reads the local log of overlay writes.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db  *db.DB
	now func() time.Time
}

// NewWriter creates a new event writer
func NewWriter(database *db.DB) *Writer {
	return &Writer{db: database, now: time.Now}
}

// LogEvent writes an event inside tx. ID and CreatedAt are filled in when
// empty.
func (w *Writer) LogEvent(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = w.now()
	}
	query := w.db.Rebind(`
		INSERT INTO crm_events (id, actor, user_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := tx.ExecContext(ctx, query,
		event.ID, event.Actor, event.UserID, event.Kind, nullable(event.Payload),
		db.FormatTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Log marshals payload and writes an event of the given kind.
func (w *Writer) Log(ctx context.Context, tx *sql.Tx, actor, userID, kind string, payload any) error {
	var body string
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
		body = string(raw)
	}
	return w.LogEvent(ctx, tx, &domain.Event{Actor: actor, UserID: userID, Kind: kind, Payload: body})
}

// ListQuery filters the event log.
type ListQuery struct {
	UserID string
	Actor  string
	Since  time.Time
	Limit  int
}

// List returns events newest first.
func List(ctx context.Context, database *db.DB, q ListQuery) ([]domain.Event, error) {
	query := `SELECT id, actor, user_id, kind, payload, created_at FROM crm_events WHERE 1=1`
	var args []any
	if q.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, q.UserID)
	}
	if q.Actor != "" {
		query += ` AND actor = ?`
		args = append(args, q.Actor)
	}
	if !q.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, db.FormatTime(q.Since))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := database.QueryContext(ctx, database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			payload sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.UserID, &e.Kind, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = payload.String
		e.CreatedAt = db.ParseTime(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
