package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/events"
	"github.com/lherron/crmq/internal/testutil"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestProfileUpsertMergesColumns(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	skills := []string{"welding", "rigging"}
	err := s.Profiles.Upsert(ctx, "me@example.com", "u-1", domain.ProfilePatch{
		Skills:           &skills,
		Gender:           strPtr("F"),
		InternationalExp: floatPtr(2.5),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// A second patch touches other columns only.
	err = s.Profiles.Upsert(ctx, "me@example.com", "u-1", domain.ProfilePatch{
		Location: &domain.Location{City: "Pune", Country: "India"},
		Language: &domain.Language{MotherTongue: "Marathi", Other: []string{"English"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	p, err := s.Profiles.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(p.Skills) != 2 || p.Skills[0] != "welding" {
		t.Errorf("skills = %v", p.Skills)
	}
	if p.Gender != "F" {
		t.Errorf("gender = %q", p.Gender)
	}
	if p.InternationalExp == nil || *p.InternationalExp != 2.5 {
		t.Errorf("international exp = %v", p.InternationalExp)
	}
	if p.DomesticExp != nil {
		t.Errorf("domestic exp should be NULL, got %v", *p.DomesticExp)
	}
	if p.Location == nil || p.Location.City != "Pune" {
		t.Errorf("location = %+v", p.Location)
	}
	if p.Language == nil || p.Language.MotherTongue != "Marathi" {
		t.Errorf("language = %+v", p.Language)
	}
	if p.UpdatedAt.IsZero() {
		t.Error("updated_at not set")
	}
}

func TestProfileUpsertEmptyPatchIsNoop(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	if err := s.Profiles.Upsert(ctx, "me@example.com", "u-1", domain.ProfilePatch{}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	_, err := s.Profiles.Get(ctx, "u-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	evs, err := events.List(ctx, s.DB(), events.ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("expected no events, got %d", len(evs))
	}
}

func TestProfileUpsertRequiresUserID(t *testing.T) {
	s := testutil.TempStore(t)
	err := s.Profiles.Upsert(context.Background(), "me@example.com", "", domain.ProfilePatch{Gender: strPtr("M")})
	if err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestGetManyEmptyAndMissing(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	got, err := s.Profiles.GetMany(ctx, nil)
	if err != nil {
		t.Fatalf("GetMany(nil): %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}

	if err := s.Assignments.Upsert(ctx, "me@example.com", "u-1", "me@example.com"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	as, err := s.Assignments.GetMany(ctx, []string{"u-1", "u-2"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(as) != 1 || as["u-1"].AssignedTo != "me@example.com" {
		t.Errorf("assignments = %+v", as)
	}
}

func TestGetManyChunksLargeIDLists(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Assignments.Upsert(ctx, "me@example.com", fmt.Sprintf("u-%d", i*400), "me@example.com"); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	ids := make([]string, 1200)
	for i := range ids {
		ids[i] = fmt.Sprintf("u-%d", i)
	}
	got, err := s.Assignments.GetMany(ctx, ids)
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows across chunks, got %d", len(got))
	}
}

func TestAnnotationUpsertReplacesRow(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	first := domain.OverrideCrmAnnotation{
		UserID:          "u-1",
		FullName:        "Jane Doe",
		TargetCountry:   "UAE",
		CallDisposition: "CONNECTED_REQUESTED_CALLBACK",
		Notes:           "call after 5",
		NextCallDate:    "2026-11-02",
	}
	if err := s.Annotations.Upsert(ctx, "me@example.com", first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	a, err := s.Annotations.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	id := a.ID

	second := domain.OverrideCrmAnnotation{UserID: "u-1", FullName: "Jane D.", CallDisposition: "OFFER_ACCEPTED"}
	if err := s.Annotations.Upsert(ctx, "me@example.com", second); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	a, err = s.Annotations.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.ID != id {
		t.Errorf("row id changed: %d -> %d", id, a.ID)
	}
	if a.FullName != "Jane D." || a.CallDisposition != "OFFER_ACCEPTED" {
		t.Errorf("annotation = %+v", a)
	}
	if a.Notes != "" || a.TargetCountry != "" || a.NextCallDate != "" {
		t.Errorf("columns not replaced: %+v", a)
	}
}

func TestAnnotationUpsertValidates(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	err := s.Annotations.Upsert(ctx, "me@example.com", domain.OverrideCrmAnnotation{UserID: "u-1", CallDisposition: "MAYBE"})
	if err == nil {
		t.Error("expected error for unknown disposition")
	}
	err = s.Annotations.Upsert(ctx, "me@example.com", domain.OverrideCrmAnnotation{UserID: "u-1", NextCallDate: "02/11/2026"})
	if err == nil {
		t.Error("expected error for malformed next call date")
	}
}

func TestAnnotationConcurrentUpsertsLeaveOneRow(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Annotations.Upsert(ctx, "me@example.com", domain.OverrideCrmAnnotation{
				UserID: "u-1",
				Notes:  fmt.Sprintf("note %d", i),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM userflow_crm WHERE user_id = 'u-1'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
}

func TestAssignmentsListing(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	rows := []struct{ user, who string }{
		{"u-1", "b@example.com"},
		{"u-2", "a@example.com"},
		{"u-3", "b@example.com"},
	}
	for _, r := range rows {
		if err := s.Assignments.Upsert(ctx, r.who, r.user, r.who); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	who, err := s.Assignments.ListAssignees(ctx)
	if err != nil {
		t.Fatalf("ListAssignees: %v", err)
	}
	if len(who) != 2 || who[0] != "a@example.com" || who[1] != "b@example.com" {
		t.Errorf("assignees = %v", who)
	}

	mine, err := s.Assignments.ListByAssignee(ctx, "b@example.com")
	if err != nil {
		t.Fatalf("ListByAssignee: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 assignments, got %d", len(mine))
	}

	if err := s.Assignments.Upsert(ctx, "x", "u-4", "  "); err == nil {
		t.Error("expected error for blank assignee")
	}
}

func TestPreferencesDefaultAndSave(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	p, err := s.Preferences.Get(ctx, "me@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SelectedCards == nil || len(p.SelectedCards) != 0 {
		t.Errorf("expected empty card list, got %#v", p.SelectedCards)
	}

	if err := s.Preferences.Save(ctx, "me@example.com", []string{"assigned", "follow-ups"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p, err = s.Preferences.Get(ctx, "me@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(p.SelectedCards) != 2 || p.SelectedCards[1] != "follow-ups" {
		t.Errorf("cards = %v", p.SelectedCards)
	}
}

func TestWritesAreLogged(t *testing.T) {
	s := testutil.TempStore(t)
	ctx := context.Background()

	if err := s.Assignments.Upsert(ctx, "me@example.com", "u-1", "me@example.com"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Annotations.Upsert(ctx, "me@example.com", domain.OverrideCrmAnnotation{UserID: "u-1", Notes: "hi"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	evs, err := events.List(ctx, s.DB(), events.ListQuery{UserID: "u-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	kinds := map[string]bool{}
	for _, e := range evs {
		kinds[e.Kind] = true
		if e.Actor != "me@example.com" {
			t.Errorf("actor = %q", e.Actor)
		}
	}
	if !kinds[domain.EventAssignmentUpserted] || !kinds[domain.EventAnnotationUpserted] {
		t.Errorf("kinds = %v", kinds)
	}
}
