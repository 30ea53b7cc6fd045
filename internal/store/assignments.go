package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/events"
)

// AssignmentStore handles user_assignments rows.
type AssignmentStore struct {
	store *Store
}

func scanAssignment(rows interface{ Scan(...any) error }) (domain.Assignment, error) {
	var (
		a       domain.Assignment
		updated string
	)
	if err := rows.Scan(&a.UserID, &a.AssignedTo, &updated); err != nil {
		return a, fmt.Errorf("scan assignment: %w", err)
	}
	a.UpdatedAt = db.ParseTime(updated)
	return a, nil
}

// GetMany returns the assignment rows for userIDs keyed by user id.
func (as *AssignmentStore) GetMany(ctx context.Context, userIDs []string) (map[string]domain.Assignment, error) {
	out := make(map[string]domain.Assignment, len(userIDs))
	err := as.store.queryIn(ctx, `SELECT user_id, assigned_to, updated_at FROM user_assignments WHERE user_id IN (%s)`, userIDs, func(rows *sql.Rows) error {
		a, err := scanAssignment(rows)
		if err != nil {
			return err
		}
		out[a.UserID] = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lookup assignments: %w", err)
	}
	return out, nil
}

// Upsert records that userID is assigned to assignedTo.
func (as *AssignmentStore) Upsert(ctx context.Context, actor, userID, assignedTo string) error {
	if userID == "" {
		return fmt.Errorf("assignment upsert: user id is required")
	}
	assignedTo = strings.TrimSpace(assignedTo)
	if assignedTo == "" {
		return fmt.Errorf("assignment upsert: assignee is required")
	}

	query := as.store.db.Rebind(`
		INSERT INTO user_assignments (user_id, assigned_to, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			assigned_to = excluded.assigned_to,
			updated_at = excluded.updated_at
	`)

	return as.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if _, err := tx.ExecContext(ctx, query, userID, assignedTo, as.store.timestamp()); err != nil {
			return fmt.Errorf("failed to upsert assignment %s: %w", userID, err)
		}
		payload := map[string]string{"assigned_to": assignedTo}
		if err := ew.Log(ctx, tx, actor, userID, domain.EventAssignmentUpserted, payload); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}

// ListAssignees returns the distinct assignees in the overlay, sorted.
func (as *AssignmentStore) ListAssignees(ctx context.Context) ([]string, error) {
	rows, err := as.store.db.QueryContext(ctx, `SELECT DISTINCT assigned_to FROM user_assignments ORDER BY assigned_to`)
	if err != nil {
		return nil, fmt.Errorf("query assignees: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var who string
		if err := rows.Scan(&who); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		out = append(out, who)
	}
	return out, rows.Err()
}

// ListByAssignee returns the assignments held by who, newest first.
func (as *AssignmentStore) ListByAssignee(ctx context.Context, who string) ([]domain.Assignment, error) {
	s := as.store
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT user_id, assigned_to, updated_at FROM user_assignments WHERE assigned_to = ? ORDER BY updated_at DESC, user_id`),
		who)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
