// Package snapshot dumps and restores the overlay tables as one JSON
// document. A snapshot taken from SQLite can be loaded into Postgres and the
// other way round.
package snapshot

import (
	"encoding/json"
)

// SchemaVersion is the snapshot document version this package writes.
const SchemaVersion = 1

// Snapshot is the full overlay state. Map keys are user ids, or event ids
// under "events".
type Snapshot struct {
	Meta        Meta                     `json:"meta"`
	Profiles    map[string]ProfileRow    `json:"profiles,omitempty"`
	Annotations map[string]AnnotationRow `json:"annotations,omitempty"`
	Assignments map[string]AssignmentRow `json:"assignments,omitempty"`
	Preferences map[string]PreferenceRow `json:"preferences,omitempty"`
	Events      map[string]EventRow      `json:"events,omitempty"`
}

// Meta describes where and when a snapshot was taken. Only SchemaVersion
// takes part in the snapshot revision.
type Meta struct {
	SchemaVersion int    `json:"schema_version"`
	SnapshotRev   string `json:"snapshot_rev,omitempty"`
	GeneratedAt   string `json:"generated_at,omitempty"`
	Dialect       string `json:"dialect,omitempty"`
}

// ProfileRow is a user_profiles row. JSON columns are kept as documents.
type ProfileRow struct {
	UserID           string          `json:"user_id"`
	Skills           json.RawMessage `json:"skills,omitempty"`
	Language         json.RawMessage `json:"language,omitempty"`
	Education        json.RawMessage `json:"education,omitempty"`
	Experience       json.RawMessage `json:"experience,omitempty"`
	DOB              string          `json:"dob,omitempty"`
	Gender           string          `json:"gender,omitempty"`
	Location         json.RawMessage `json:"location,omitempty"`
	InternationalExp *float64        `json:"international_exp,omitempty"`
	DomesticExp      *float64        `json:"domestic_exp,omitempty"`
	UpdatedAt        string          `json:"updated_at"`
}

// AnnotationRow is a userflow_crm row without its surrogate id.
type AnnotationRow struct {
	UserID          string `json:"user_id"`
	FullName        string `json:"full_name,omitempty"`
	TargetCountry   string `json:"target_country,omitempty"`
	TargetJobRole   string `json:"target_job_role,omitempty"`
	TargetCountryID string `json:"target_country_id,omitempty"`
	TargetJobRoleID string `json:"target_job_role_id,omitempty"`
	CallDisposition string `json:"call_disposition,omitempty"`
	Notes           string `json:"notes,omitempty"`
	NextCallDate    string `json:"next_call_date,omitempty"`
	UpdatedAt       string `json:"updated_at"`
}

// AssignmentRow is a user_assignments row.
type AssignmentRow struct {
	UserID     string `json:"user_id"`
	AssignedTo string `json:"assigned_to"`
	UpdatedAt  string `json:"updated_at"`
}

// PreferenceRow is a dashboard_preferences row.
type PreferenceRow struct {
	UserID        string          `json:"user_id"`
	SelectedCards json.RawMessage `json:"selected_cards"`
	UpdatedAt     string          `json:"updated_at"`
}

// EventRow is a crm_events row.
type EventRow struct {
	ID        string          `json:"id"`
	Actor     string          `json:"actor"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// ExportOptions configures snapshot export.
type ExportOptions struct {
	// OutputPath is the file to write; "-" or empty writes to the
	// exporter's writer.
	OutputPath string
	// SkipEvents leaves the crm_events log out of the snapshot.
	SkipEvents bool
}

// ImportOptions configures snapshot import.
type ImportOptions struct {
	// InputPath is the file to read ("-" for the importer's reader).
	InputPath string
	// DryRun validates without writing
	DryRun bool
	// IfEmpty refuses to load into an overlay that already has rows.
	IfEmpty bool
	// Force clears the overlay tables before loading.
	Force bool
}

// Counts reports the rows per table of a snapshot.
type Counts struct {
	Profiles    int `json:"profiles"`
	Annotations int `json:"annotations"`
	Assignments int `json:"assignments"`
	Preferences int `json:"preferences"`
	Events      int `json:"events"`
}

// CountsOf returns the row counts of s.
func CountsOf(s *Snapshot) Counts {
	return Counts{
		Profiles:    len(s.Profiles),
		Annotations: len(s.Annotations),
		Assignments: len(s.Assignments),
		Preferences: len(s.Preferences),
		Events:      len(s.Events),
	}
}

// ExportResult contains the result of an export operation.
type ExportResult struct {
	OutputPath  string `json:"out"`
	SnapshotRev string `json:"snapshot_rev"`
	Counts
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	InputPath   string `json:"from"`
	SnapshotRev string `json:"snapshot_rev"`
	Counts
	DryRun bool `json:"dry_run,omitempty"`
}

// VerifyResult compares a snapshot file with the live overlay.
type VerifyResult struct {
	InputPath   string `json:"input"`
	Valid       bool   `json:"valid"`
	SnapshotRev string `json:"snapshot_rev"`
	DatabaseRev string `json:"database_rev"`
	Message     string `json:"message,omitempty"`
}
