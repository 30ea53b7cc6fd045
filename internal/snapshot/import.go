package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/lherron/crmq/internal/db"
)

// overlayTables lists the tables a snapshot covers, in load order.
var overlayTables = []string{"user_profiles", "userflow_crm", "user_assignments", "dashboard_preferences", "crm_events"}

// Load reads and parses a snapshot from path, or from r when path is "-".
func Load(path string, r io.Reader) (*Snapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(r)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}

// Validate checks the schema version, the map keys and, when present, the
// recorded revision.
func Validate(s *Snapshot) error {
	if s.Meta.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (want %d)", s.Meta.SchemaVersion, SchemaVersion)
	}
	for k, p := range s.Profiles {
		if p.UserID != k {
			return fmt.Errorf("profiles[%q] has user_id %q", k, p.UserID)
		}
	}
	for k, a := range s.Annotations {
		if a.UserID != k {
			return fmt.Errorf("annotations[%q] has user_id %q", k, a.UserID)
		}
	}
	for k, a := range s.Assignments {
		if a.UserID != k {
			return fmt.Errorf("assignments[%q] has user_id %q", k, a.UserID)
		}
		if a.AssignedTo == "" {
			return fmt.Errorf("assignments[%q] has no assignee", k)
		}
	}
	for k, p := range s.Preferences {
		if p.UserID != k {
			return fmt.Errorf("preferences[%q] has user_id %q", k, p.UserID)
		}
	}
	for k, e := range s.Events {
		if e.ID != k {
			return fmt.Errorf("events[%q] has id %q", k, e.ID)
		}
	}
	if s.Meta.SnapshotRev != "" {
		rev, err := Rev(s)
		if err != nil {
			return err
		}
		if rev != s.Meta.SnapshotRev {
			return fmt.Errorf("snapshot_rev mismatch: file says %s, content hashes to %s", s.Meta.SnapshotRev, rev)
		}
	}
	return nil
}

// Import loads a snapshot into the overlay in one transaction. Rows are
// upserted by key, so importing the same snapshot twice is a no-op.
func Import(ctx context.Context, d *db.DB, opts ImportOptions, r io.Reader) (*ImportResult, error) {
	snap, err := Load(opts.InputPath, r)
	if err != nil {
		return nil, err
	}
	if err := Validate(snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	if opts.IfEmpty {
		empty, err := isOverlayEmpty(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("failed to check database: %w", err)
		}
		if !empty {
			return nil, fmt.Errorf("overlay database is not empty (use --force to replace it)")
		}
	}

	result := &ImportResult{
		InputPath:   opts.InputPath,
		SnapshotRev: snap.Meta.SnapshotRev,
		Counts:      CountsOf(snap),
		DryRun:      opts.DryRun,
	}
	if opts.DryRun {
		return result, nil
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if opts.Force {
		for _, table := range overlayTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return nil, fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
	}

	steps := []struct {
		table string
		fn    func(context.Context, *sql.Tx, *db.DB, *Snapshot) error
	}{
		{"user_profiles", importProfiles},
		{"userflow_crm", importAnnotations},
		{"user_assignments", importAssignments},
		{"dashboard_preferences", importPreferences},
		{"crm_events", importEvents},
	}
	for _, step := range steps {
		if err := step.fn(ctx, tx, d, snap); err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", step.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// Verify compares a snapshot file with the current overlay. The result is
// valid when the file is intact and the overlay holds the same state.
func Verify(ctx context.Context, d *db.DB, path string, r io.Reader) (*VerifyResult, error) {
	snap, err := Load(path, r)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{InputPath: path, SnapshotRev: snap.Meta.SnapshotRev}
	if err := Validate(snap); err != nil {
		res.Message = err.Error()
		return res, nil
	}

	live, err := Build(ctx, d, ExportOptions{SkipEvents: len(snap.Events) == 0})
	if err != nil {
		return nil, fmt.Errorf("failed to read overlay: %w", err)
	}
	liveJSON, err := CanonicalJSON(live)
	if err != nil {
		return nil, err
	}
	fileJSON, err := CanonicalJSON(snap)
	if err != nil {
		return nil, err
	}
	res.DatabaseRev = ComputeSnapshotRev(liveJSON)
	if res.SnapshotRev == "" {
		res.SnapshotRev = ComputeSnapshotRev(fileJSON)
	}

	if res.DatabaseRev != res.SnapshotRev {
		res.Message = "overlay differs from snapshot: " + firstDiff(string(fileJSON), string(liveJSON))
		return res, nil
	}
	res.Valid = true
	res.Message = "overlay matches snapshot"
	return res, nil
}

func isOverlayEmpty(ctx context.Context, d *db.DB) (bool, error) {
	for _, table := range overlayTables {
		var n int
		if err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

// sortedKeys keeps inserts in a stable order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullRaw stores a document compacted, the way the store writes it.
func nullRaw(r json.RawMessage) any {
	if len(r) == 0 || string(r) == "null" {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, r); err != nil {
		return string(r)
	}
	return buf.String()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func importProfiles(ctx context.Context, tx *sql.Tx, d *db.DB, snap *Snapshot) error {
	query := d.Rebind(`
		INSERT INTO user_profiles (user_id, skills, language, education, experience, dob, gender, location,
			international_exp, domestic_exp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			skills = excluded.skills,
			language = excluded.language,
			education = excluded.education,
			experience = excluded.experience,
			dob = excluded.dob,
			gender = excluded.gender,
			location = excluded.location,
			international_exp = excluded.international_exp,
			domestic_exp = excluded.domestic_exp,
			updated_at = excluded.updated_at
	`)
	for _, k := range sortedKeys(snap.Profiles) {
		p := snap.Profiles[k]
		_, err := tx.ExecContext(ctx, query,
			p.UserID, nullRaw(p.Skills), nullRaw(p.Language), nullRaw(p.Education), nullRaw(p.Experience),
			nullText(p.DOB), nullText(p.Gender), nullRaw(p.Location),
			nullFloat(p.InternationalExp), nullFloat(p.DomesticExp), p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("profile %s: %w", k, err)
		}
	}
	return nil
}

func importAnnotations(ctx context.Context, tx *sql.Tx, d *db.DB, snap *Snapshot) error {
	query := d.Rebind(`
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
	for _, k := range sortedKeys(snap.Annotations) {
		a := snap.Annotations[k]
		_, err := tx.ExecContext(ctx, query,
			a.UserID, nullText(a.FullName), nullText(a.TargetCountry), nullText(a.TargetJobRole),
			nullText(a.TargetCountryID), nullText(a.TargetJobRoleID), nullText(a.CallDisposition),
			nullText(a.Notes), nullText(a.NextCallDate), a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("annotation %s: %w", k, err)
		}
	}
	return nil
}

func importAssignments(ctx context.Context, tx *sql.Tx, d *db.DB, snap *Snapshot) error {
	query := d.Rebind(`
		INSERT INTO user_assignments (user_id, assigned_to, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			assigned_to = excluded.assigned_to,
			updated_at = excluded.updated_at
	`)
	for _, k := range sortedKeys(snap.Assignments) {
		a := snap.Assignments[k]
		if _, err := tx.ExecContext(ctx, query, a.UserID, a.AssignedTo, a.UpdatedAt); err != nil {
			return fmt.Errorf("assignment %s: %w", k, err)
		}
	}
	return nil
}

func importPreferences(ctx context.Context, tx *sql.Tx, d *db.DB, snap *Snapshot) error {
	query := d.Rebind(`
		INSERT INTO dashboard_preferences (user_id, selected_cards, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			selected_cards = excluded.selected_cards,
			updated_at = excluded.updated_at
	`)
	for _, k := range sortedKeys(snap.Preferences) {
		p := snap.Preferences[k]
		cards := nullRaw(p.SelectedCards)
		if cards == nil {
			cards = "[]"
		}
		if _, err := tx.ExecContext(ctx, query, p.UserID, cards, p.UpdatedAt); err != nil {
			return fmt.Errorf("preferences %s: %w", k, err)
		}
	}
	return nil
}

func importEvents(ctx context.Context, tx *sql.Tx, d *db.DB, snap *Snapshot) error {
	query := d.Rebind(`
		INSERT INTO crm_events (id, actor, user_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	for _, k := range sortedKeys(snap.Events) {
		e := snap.Events[k]
		if _, err := tx.ExecContext(ctx, query, e.ID, e.Actor, e.UserID, e.Kind, nullRaw(e.Payload), e.CreatedAt); err != nil {
			return fmt.Errorf("event %s: %w", k, err)
		}
	}
	return nil
}
