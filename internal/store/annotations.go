package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/events"
)

// AnnotationStore handles userflow_crm rows.
type AnnotationStore struct {
	store *Store
}

const annotationColumns = `id, user_id, full_name, target_country, target_job_role, target_country_id,
	target_job_role_id, call_disposition, notes, next_call_date, updated_at`

func scanAnnotation(rows interface{ Scan(...any) error }) (domain.OverrideCrmAnnotation, error) {
	var (
		a                                      domain.OverrideCrmAnnotation
		name, country, role, countryID, roleID sql.NullString
		disposition, notes, nextCall           sql.NullString
		updated                                string
	)
	err := rows.Scan(&a.ID, &a.UserID, &name, &country, &role, &countryID, &roleID,
		&disposition, &notes, &nextCall, &updated)
	if err != nil {
		return a, fmt.Errorf("scan annotation: %w", err)
	}
	a.FullName = name.String
	a.TargetCountry = country.String
	a.TargetJobRole = role.String
	a.TargetCountryID = countryID.String
	a.TargetJobRoleID = roleID.String
	a.CallDisposition = disposition.String
	a.Notes = notes.String
	a.NextCallDate = nextCall.String
	a.UpdatedAt = db.ParseTime(updated)
	return a, nil
}

// Get returns the annotation row for userID.
func (as *AnnotationStore) Get(ctx context.Context, userID string) (*domain.OverrideCrmAnnotation, error) {
	s := as.store
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+annotationColumns+` FROM userflow_crm WHERE user_id = ?`), userID)
	a, err := scanAnnotation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "annotation", ID: userID}
		}
		return nil, err
	}
	return &a, nil
}

// GetMany returns the annotation rows for userIDs keyed by user id.
func (as *AnnotationStore) GetMany(ctx context.Context, userIDs []string) (map[string]domain.OverrideCrmAnnotation, error) {
	out := make(map[string]domain.OverrideCrmAnnotation, len(userIDs))
	err := as.store.queryIn(ctx, `SELECT `+annotationColumns+` FROM userflow_crm WHERE user_id IN (%s)`, userIDs, func(rows *sql.Rows) error {
		a, err := scanAnnotation(rows)
		if err != nil {
			return err
		}
		out[a.UserID] = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lookup annotations: %w", err)
	}
	return out, nil
}

// Upsert replaces every annotation column for a.UserID in one statement.
// There is no existence check: concurrent writers race and the last one wins.
func (as *AnnotationStore) Upsert(ctx context.Context, actor string, a domain.OverrideCrmAnnotation) error {
	if a.UserID == "" {
		return fmt.Errorf("annotation upsert: user id is required")
	}
	if err := domain.ValidateDisposition(a.CallDisposition); err != nil {
		return err
	}
	if err := domain.ValidateDay(a.NextCallDate); err != nil {
		return err
	}

	query := as.store.db.Rebind(`
		INSERT INTO userflow_crm (user_id, full_name, target_country, target_job_role, target_country_id,
			target_job_role_id, call_disposition, notes, next_call_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = excluded.full_name,
			target_country = excluded.target_country,
			target_job_role = excluded.target_job_role,
			target_country_id = excluded.target_country_id,
			target_job_role_id = excluded.target_job_role_id,
			call_disposition = excluded.call_disposition,
			notes = excluded.notes,
			next_call_date = excluded.next_call_date,
			updated_at = excluded.updated_at
	`)

	return as.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		_, err := tx.ExecContext(ctx, query,
			a.UserID, nullString(a.FullName), nullString(a.TargetCountry), nullString(a.TargetJobRole),
			nullString(a.TargetCountryID), nullString(a.TargetJobRoleID), nullString(a.CallDisposition),
			nullString(a.Notes), nullString(a.NextCallDate), as.store.timestamp())
		if err != nil {
			return fmt.Errorf("failed to upsert annotation %s: %w", a.UserID, err)
		}
		if err := ew.Log(ctx, tx, actor, a.UserID, domain.EventAnnotationUpserted, a); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}
