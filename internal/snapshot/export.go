package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lherron/crmq/internal/db"
)

// Export reads the overlay and writes a snapshot to opts.OutputPath, or to
// w when the path is empty or "-".
func Export(ctx context.Context, d *db.DB, opts ExportOptions, w io.Writer) (*ExportResult, error) {
	snap, err := Build(ctx, d, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	rev, err := Rev(snap)
	if err != nil {
		return nil, err
	}
	snap.Meta.SnapshotRev = rev
	snap.Meta.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := PrettyJSON(snap)
	if err != nil {
		return nil, err
	}

	out := opts.OutputPath
	if out == "" || out == "-" {
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}
		out = "-"
	} else {
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}
	}

	return &ExportResult{OutputPath: out, SnapshotRev: rev, Counts: CountsOf(snap)}, nil
}

// Build reads every overlay table into a Snapshot. Meta carries the schema
// version and dialect only.
func Build(ctx context.Context, d *db.DB, opts ExportOptions) (*Snapshot, error) {
	snap := &Snapshot{
		Meta:        Meta{SchemaVersion: SchemaVersion, Dialect: string(d.Dialect())},
		Profiles:    map[string]ProfileRow{},
		Annotations: map[string]AnnotationRow{},
		Assignments: map[string]AssignmentRow{},
		Preferences: map[string]PreferenceRow{},
		Events:      map[string]EventRow{},
	}

	steps := []struct {
		table string
		fn    func(context.Context, *db.DB, *Snapshot) error
	}{
		{"user_profiles", exportProfiles},
		{"userflow_crm", exportAnnotations},
		{"user_assignments", exportAssignments},
		{"dashboard_preferences", exportPreferences},
	}
	if !opts.SkipEvents {
		steps = append(steps, struct {
			table string
			fn    func(context.Context, *db.DB, *Snapshot) error
		}{"crm_events", exportEvents})
	}
	for _, step := range steps {
		if err := step.fn(ctx, d, snap); err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", step.table, err)
		}
	}
	return snap, nil
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func exportProfiles(ctx context.Context, d *db.DB, snap *Snapshot) error {
	rows, err := d.QueryContext(ctx, `
		SELECT user_id, skills, language, education, experience, dob, gender, location,
			international_exp, domestic_exp, updated_at
		FROM user_profiles
		ORDER BY user_id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                                        ProfileRow
			skills, lang, edu, exp, dob, gender, loc sql.NullString
			intl, dom                                sql.NullFloat64
		)
		if err := rows.Scan(&p.UserID, &skills, &lang, &edu, &exp, &dob, &gender, &loc, &intl, &dom, &p.UpdatedAt); err != nil {
			return err
		}
		p.Skills = rawJSON(skills)
		p.Language = rawJSON(lang)
		p.Education = rawJSON(edu)
		p.Experience = rawJSON(exp)
		p.Location = rawJSON(loc)
		p.DOB = dob.String
		p.Gender = gender.String
		p.InternationalExp = floatPtr(intl)
		p.DomesticExp = floatPtr(dom)
		snap.Profiles[p.UserID] = p
	}
	return rows.Err()
}

func exportAnnotations(ctx context.Context, d *db.DB, snap *Snapshot) error {
	rows, err := d.QueryContext(ctx, `
		SELECT user_id, full_name, target_country, target_job_role, target_country_id,
			target_job_role_id, call_disposition, notes, next_call_date, updated_at
		FROM userflow_crm
		ORDER BY user_id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a                                   AnnotationRow
			name, country, role, countryID      sql.NullString
			roleID, disposition, notes, nextDay sql.NullString
		)
		if err := rows.Scan(&a.UserID, &name, &country, &role, &countryID, &roleID, &disposition, &notes, &nextDay, &a.UpdatedAt); err != nil {
			return err
		}
		a.FullName = name.String
		a.TargetCountry = country.String
		a.TargetJobRole = role.String
		a.TargetCountryID = countryID.String
		a.TargetJobRoleID = roleID.String
		a.CallDisposition = disposition.String
		a.Notes = notes.String
		a.NextCallDate = nextDay.String
		snap.Annotations[a.UserID] = a
	}
	return rows.Err()
}

func exportAssignments(ctx context.Context, d *db.DB, snap *Snapshot) error {
	rows, err := d.QueryContext(ctx, `SELECT user_id, assigned_to, updated_at FROM user_assignments ORDER BY user_id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a AssignmentRow
		if err := rows.Scan(&a.UserID, &a.AssignedTo, &a.UpdatedAt); err != nil {
			return err
		}
		snap.Assignments[a.UserID] = a
	}
	return rows.Err()
}

func exportPreferences(ctx context.Context, d *db.DB, snap *Snapshot) error {
	rows, err := d.QueryContext(ctx, `SELECT user_id, selected_cards, updated_at FROM dashboard_preferences ORDER BY user_id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p     PreferenceRow
			cards sql.NullString
		)
		if err := rows.Scan(&p.UserID, &cards, &p.UpdatedAt); err != nil {
			return err
		}
		p.SelectedCards = rawJSON(cards)
		if p.SelectedCards == nil {
			p.SelectedCards = json.RawMessage("[]")
		}
		snap.Preferences[p.UserID] = p
	}
	return rows.Err()
}

func exportEvents(ctx context.Context, d *db.DB, snap *Snapshot) error {
	rows, err := d.QueryContext(ctx, `SELECT id, actor, user_id, kind, payload, created_at FROM crm_events ORDER BY created_at, id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e       EventRow
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.UserID, &e.Kind, &payload, &e.CreatedAt); err != nil {
			return err
		}
		e.Payload = rawJSON(payload)
		snap.Events[e.ID] = e
	}
	return rows.Err()
}
