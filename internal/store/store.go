// Package store is the overlay store: recruiter-entered overrides kept
// beside the primary API. Every write is an atomic upsert keyed by user id
// and is logged to crm_events in the same transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/events"
)

// maxInChunk bounds the number of ids per IN (...) query.
const maxInChunk = 500

// Store is the root store that provides access to the overlay tables.
type Store struct {
	db  *db.DB
	now func() time.Time

	Profiles    *ProfileStore
	Annotations *AnnotationStore
	Assignments *AssignmentStore
	Preferences *PreferenceStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database, now: time.Now}
	s.Profiles = &ProfileStore{store: s}
	s.Annotations = &AnnotationStore{store: s}
	s.Assignments = &AssignmentStore{store: s}
	s.Preferences = &PreferenceStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}

// queryIn runs query once per chunk of ids. The query must contain a single
// %s where the placeholder list goes.
func (s *Store) queryIn(ctx context.Context, query string, ids []string, scan func(*sql.Rows) error) error {
	for start := 0; start < len(ids); start += maxInChunk {
		end := min(start+maxInChunk, len(ids))
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}

		rows, err := s.db.QueryContext(ctx, s.db.Rebind(fmt.Sprintf(query, db.Placeholders(len(chunk)))), args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			if err := scan(rows); err != nil {
				rows.Close()
				return err
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) timestamp() string {
	return db.FormatTime(s.now())
}

// encodeJSON returns nil for nil values so the column stays NULL.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return string(raw), nil
}

func decodeJSON(col sql.NullString, target any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), target)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpsertAssignment delegates to Assignments.Upsert.
func (s *Store) UpsertAssignment(ctx context.Context, actor, userID, assignee string) error {
	return s.Assignments.Upsert(ctx, actor, userID, assignee)
}

// UpsertProfile delegates to Profiles.Upsert.
func (s *Store) UpsertProfile(ctx context.Context, actor, userID string, patch domain.ProfilePatch) error {
	return s.Profiles.Upsert(ctx, actor, userID, patch)
}

// UpsertAnnotation delegates to Annotations.Upsert.
func (s *Store) UpsertAnnotation(ctx context.Context, actor string, a domain.OverrideCrmAnnotation) error {
	return s.Annotations.Upsert(ctx, actor, a)
}

// ListAssignees delegates to Assignments.ListAssignees.
func (s *Store) ListAssignees(ctx context.Context) ([]string, error) {
	return s.Assignments.ListAssignees(ctx)
}
