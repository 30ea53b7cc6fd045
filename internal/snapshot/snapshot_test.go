package snapshot_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/snapshot"
	"github.com/lherron/crmq/internal/store"
	"github.com/lherron/crmq/internal/testutil"
)

const actor = "me@example.com"

func strPtr(s string) *string { return &s }

func seed(t *testing.T) *db.DB {
	t.Helper()
	d, _ := testutil.TempDB(t)
	s := store.New(d)
	ctx := context.Background()

	exp := 2.5
	if err := s.UpsertProfile(ctx, actor, "u-1", domain.ProfilePatch{
		Skills:           &[]string{"welding", "rigging"},
		Gender:           strPtr("Female"),
		InternationalExp: &exp,
	}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if err := s.UpsertAnnotation(ctx, actor, domain.OverrideCrmAnnotation{
		UserID:          "u-1",
		FullName:        "Asha R.",
		CallDisposition: "CONNECTED_INTERESTED",
		NextCallDate:    "2026-11-02",
	}); err != nil {
		t.Fatalf("UpsertAnnotation: %v", err)
	}
	if err := s.UpsertAssignment(ctx, actor, "u-1", actor); err != nil {
		t.Fatalf("UpsertAssignment: %v", err)
	}
	if err := s.UpsertAssignment(ctx, actor, "u-2", "other@example.com"); err != nil {
		t.Fatalf("UpsertAssignment: %v", err)
	}
	if err := s.Preferences.Save(ctx, actor, []string{"assigned", "callbacks"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return d
}

func exportTo(t *testing.T, d *db.DB, opts snapshot.ExportOptions) (string, *snapshot.ExportResult) {
	t.Helper()
	if opts.OutputPath == "" {
		opts.OutputPath = filepath.Join(t.TempDir(), "overlay.json")
	}
	res, err := snapshot.Export(context.Background(), d, opts, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	return opts.OutputPath, res
}

func TestExportImportRoundTrip(t *testing.T) {
	src := seed(t)
	path, res := exportTo(t, src, snapshot.ExportOptions{})

	if res.Profiles != 1 || res.Annotations != 1 || res.Assignments != 2 || res.Preferences != 1 {
		t.Errorf("export counts = %+v", res.Counts)
	}
	if res.Events == 0 {
		t.Error("expected events in the snapshot")
	}
	if !strings.HasPrefix(res.SnapshotRev, "sha256:") {
		t.Errorf("snapshot rev = %q", res.SnapshotRev)
	}

	dst, _ := testutil.TempDB(t)
	ctx := context.Background()
	imp, err := snapshot.Import(ctx, dst, snapshot.ImportOptions{InputPath: path, IfEmpty: true}, nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if imp.Counts != res.Counts {
		t.Errorf("import counts = %+v, want %+v", imp.Counts, res.Counts)
	}

	s := store.New(dst)
	a, err := s.Annotations.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get annotation: %v", err)
	}
	if a.FullName != "Asha R." || a.CallDisposition != "CONNECTED_INTERESTED" {
		t.Errorf("annotation = %+v", a)
	}
	p, err := s.Profiles.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get profile: %v", err)
	}
	if len(p.Skills) != 2 || p.Gender != "Female" || p.InternationalExp == nil || *p.InternationalExp != 2.5 {
		t.Errorf("profile = %+v", p)
	}
	who, err := s.ListAssignees(ctx)
	if err != nil {
		t.Fatalf("ListAssignees: %v", err)
	}
	if len(who) != 2 {
		t.Errorf("assignees = %v", who)
	}

	v, err := snapshot.Verify(ctx, dst, path, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.Valid {
		t.Errorf("verify after import: %s", v.Message)
	}

	// Loading the same file again changes nothing.
	if _, err := snapshot.Import(ctx, dst, snapshot.ImportOptions{InputPath: path}, nil); err != nil {
		t.Fatalf("second Import: %v", err)
	}
	v, err = snapshot.Verify(ctx, dst, path, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.Valid {
		t.Errorf("verify after re-import: %s", v.Message)
	}
}

func TestRevIgnoresMeta(t *testing.T) {
	d := seed(t)
	snap, err := snapshot.Build(context.Background(), d, snapshot.ExportOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r1, err := snapshot.Rev(snap)
	if err != nil {
		t.Fatal(err)
	}
	snap.Meta.GeneratedAt = "2020-01-01T00:00:00Z"
	snap.Meta.Dialect = "postgres"
	snap.Meta.SnapshotRev = "sha256:bogus"
	r2, err := snapshot.Rev(snap)
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Errorf("rev changed with meta: %s -> %s", r1, r2)
	}
}

func TestExportToWriter(t *testing.T) {
	d := seed(t)
	var buf bytes.Buffer
	res, err := snapshot.Export(context.Background(), d, snapshot.ExportOptions{OutputPath: "-", SkipEvents: true}, &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.OutputPath != "-" || res.Events != 0 {
		t.Errorf("result = %+v", res)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if snap.Meta.Dialect != "sqlite" || snap.Meta.SnapshotRev != res.SnapshotRev {
		t.Errorf("meta = %+v", snap.Meta)
	}
	var cards []string
	if err := json.Unmarshal(snap.Preferences[actor].SelectedCards, &cards); err != nil {
		t.Fatalf("selected cards: %v", err)
	}
	if len(cards) != 2 || cards[0] != "assigned" {
		t.Errorf("selected cards = %v", cards)
	}
}

func TestImportIfEmptyRefusesPopulatedOverlay(t *testing.T) {
	src := seed(t)
	path, _ := exportTo(t, src, snapshot.ExportOptions{})

	_, err := snapshot.Import(context.Background(), src, snapshot.ImportOptions{InputPath: path, IfEmpty: true}, nil)
	if err == nil || !strings.Contains(err.Error(), "not empty") {
		t.Errorf("expected not-empty error, got %v", err)
	}
}

func TestImportForceReplaces(t *testing.T) {
	src := seed(t)
	path, _ := exportTo(t, src, snapshot.ExportOptions{})

	dst, _ := testutil.TempDB(t)
	ctx := context.Background()
	if err := store.New(dst).UpsertAssignment(ctx, actor, "u-9", actor); err != nil {
		t.Fatalf("UpsertAssignment: %v", err)
	}

	if _, err := snapshot.Import(ctx, dst, snapshot.ImportOptions{InputPath: path, Force: true}, nil); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, err := store.New(dst).Assignments.GetMany(ctx, []string{"u-9"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("u-9 survived a forced import: %+v", got)
	}
	v, err := snapshot.Verify(ctx, dst, path, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.Valid {
		t.Errorf("verify: %s", v.Message)
	}
}

func TestImportDryRunWritesNothing(t *testing.T) {
	src := seed(t)
	path, res := exportTo(t, src, snapshot.ExportOptions{})

	dst, _ := testutil.TempDB(t)
	imp, err := snapshot.Import(context.Background(), dst, snapshot.ImportOptions{InputPath: path, DryRun: true}, nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !imp.DryRun || imp.Counts != res.Counts {
		t.Errorf("dry run result = %+v", imp)
	}
	var n int
	if err := dst.QueryRow("SELECT COUNT(*) FROM user_assignments").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("dry run wrote %d assignments", n)
	}
}

func TestImportRejectsBadSnapshots(t *testing.T) {
	src := seed(t)
	path, _ := exportTo(t, src, snapshot.ExportOptions{SkipEvents: true})
	raw := testutil.ReadFile(t, path)
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"schema version", strings.Replace(raw, `"schema_version": 1`, `"schema_version": 7`, 1), "schema_version"},
		{"tampered", strings.Replace(raw, "Asha R.", "Mallory", 1), "snapshot_rev mismatch"},
		{"key mismatch", `{"meta":{"schema_version":1},"assignments":{"u-1":{"user_id":"u-2","assigned_to":"x","updated_at":"t"}}}`, "has user_id"},
		{"not json", "{", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.WriteFile(t, dir, tt.name+".json", tt.content)
			dst, _ := testutil.TempDB(t)
			_, err := snapshot.Import(context.Background(), dst, snapshot.ImportOptions{InputPath: p}, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyReportsDrift(t *testing.T) {
	d := seed(t)
	path, _ := exportTo(t, d, snapshot.ExportOptions{})
	ctx := context.Background()

	if err := store.New(d).UpsertAssignment(ctx, actor, "u-3", actor); err != nil {
		t.Fatalf("UpsertAssignment: %v", err)
	}
	v, err := snapshot.Verify(ctx, d, path, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Valid {
		t.Error("expected drift to be reported")
	}
	if v.DatabaseRev == v.SnapshotRev || !strings.Contains(v.Message, "differs") {
		t.Errorf("verify = %+v", v)
	}

	if _, err := snapshot.Verify(ctx, d, filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}
