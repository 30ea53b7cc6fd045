package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/events"
)

// ProfileStore handles user_profiles rows.
type ProfileStore struct {
	store *Store
}

const profileColumns = `user_id, skills, language, education, experience, dob, gender, location,
	international_exp, domestic_exp, updated_at`

func scanProfile(rows interface{ Scan(...any) error }) (domain.OverrideProfile, error) {
	var (
		p                                        domain.OverrideProfile
		skills, lang, edu, exp, dob, gender, loc sql.NullString
		intl, dom                                sql.NullFloat64
		updated                                  string
	)
	if err := rows.Scan(&p.UserID, &skills, &lang, &edu, &exp, &dob, &gender, &loc, &intl, &dom, &updated); err != nil {
		return p, fmt.Errorf("scan profile: %w", err)
	}
	if err := decodeJSON(skills, &p.Skills); err != nil {
		return p, fmt.Errorf("decode skills for %s: %w", p.UserID, err)
	}
	if err := decodeJSON(lang, &p.Language); err != nil {
		return p, fmt.Errorf("decode language for %s: %w", p.UserID, err)
	}
	if err := decodeJSON(edu, &p.Education); err != nil {
		return p, fmt.Errorf("decode education for %s: %w", p.UserID, err)
	}
	if err := decodeJSON(exp, &p.Experience); err != nil {
		return p, fmt.Errorf("decode experience for %s: %w", p.UserID, err)
	}
	if err := decodeJSON(loc, &p.Location); err != nil {
		return p, fmt.Errorf("decode location for %s: %w", p.UserID, err)
	}
	p.DOB = dob.String
	p.Gender = gender.String
	if intl.Valid {
		v := intl.Float64
		p.InternationalExp = &v
	}
	if dom.Valid {
		v := dom.Float64
		p.DomesticExp = &v
	}
	p.UpdatedAt = db.ParseTime(updated)
	return p, nil
}

// Get returns one profile row.
func (ps *ProfileStore) Get(ctx context.Context, userID string) (*domain.OverrideProfile, error) {
	s := ps.store
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`), userID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "profile", ID: userID}
		}
		return nil, err
	}
	return &p, nil
}

// GetMany returns the profile rows for userIDs keyed by user id.
func (ps *ProfileStore) GetMany(ctx context.Context, userIDs []string) (map[string]domain.OverrideProfile, error) {
	out := make(map[string]domain.OverrideProfile, len(userIDs))
	err := ps.store.queryIn(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id IN (%s)`, userIDs, func(rows *sql.Rows) error {
		p, err := scanProfile(rows)
		if err != nil {
			return err
		}
		out[p.UserID] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lookup profiles: %w", err)
	}
	return out, nil
}

// Upsert writes the fields set in patch, leaving the other columns of an
// existing row untouched. It is a single INSERT ... ON CONFLICT statement.
func (ps *ProfileStore) Upsert(ctx context.Context, actor, userID string, patch domain.ProfilePatch) error {
	if userID == "" {
		return fmt.Errorf("profile upsert: user id is required")
	}
	if patch.IsEmpty() {
		return nil
	}

	cols := []string{"user_id", "updated_at"}
	args := []any{userID, ps.store.timestamp()}
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	addJSON := func(col string, v any) error {
		enc, err := encodeJSON(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", col, err)
		}
		add(col, enc)
		return nil
	}

	if patch.Skills != nil {
		if err := addJSON("skills", *patch.Skills); err != nil {
			return err
		}
	}
	if patch.Language != nil {
		if err := addJSON("language", patch.Language); err != nil {
			return err
		}
	}
	if patch.Education != nil {
		if err := addJSON("education", *patch.Education); err != nil {
			return err
		}
	}
	if patch.Experience != nil {
		if err := addJSON("experience", *patch.Experience); err != nil {
			return err
		}
	}
	if patch.Location != nil {
		if err := addJSON("location", patch.Location); err != nil {
			return err
		}
	}
	if patch.DOB != nil {
		add("dob", nullString(*patch.DOB))
	}
	if patch.Gender != nil {
		add("gender", nullString(*patch.Gender))
	}
	if patch.InternationalExp != nil {
		add("international_exp", *patch.InternationalExp)
	}
	if patch.DomesticExp != nil {
		add("domestic_exp", *patch.DomesticExp)
	}

	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	query := fmt.Sprintf(`INSERT INTO user_profiles (%s) VALUES (%s) ON CONFLICT (user_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), db.Placeholders(len(cols)), strings.Join(updates, ", "))

	return ps.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if _, err := tx.ExecContext(ctx, ps.store.db.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to upsert profile %s: %w", userID, err)
		}
		if err := ew.Log(ctx, tx, actor, userID, domain.EventProfileUpserted, patch); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}
