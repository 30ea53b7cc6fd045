package view

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/notify"
	"github.com/lherron/crmq/internal/reconcile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const me = "me@example.com"

// fakeLoader serves a copy of rows on every call unless next is set.
type fakeLoader struct {
	mu    sync.Mutex
	rows  []domain.MergedRecord
	calls atomic.Int32
	next  func(call int32) (reconcile.Result, error)
}

func (f *fakeLoader) Load(ctx context.Context, dataset domain.Dataset, _ domain.Filters, page, size int) (reconcile.Result, error) {
	n := f.calls.Add(1)
	if f.next != nil {
		return f.next(n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := append([]domain.MergedRecord(nil), f.rows...)
	return reconcile.Result{Records: rows, Total: len(rows)}, nil
}

type fakeWriter struct {
	mu          sync.Mutex
	assignments map[string]string
	profiles    map[string]domain.ProfilePatch
	annotations map[string]domain.OverrideCrmAnnotation
	stored      []string
	err         error
	// entered, when set, is closed on the first assignment upsert, which
	// then waits for release.
	entered chan struct{}
	release chan struct{}
}

func newWriter() *fakeWriter {
	return &fakeWriter{
		assignments: map[string]string{},
		profiles:    map[string]domain.ProfilePatch{},
		annotations: map[string]domain.OverrideCrmAnnotation{},
	}
}

func (w *fakeWriter) UpsertAssignment(ctx context.Context, actor, userID, assignee string) error {
	if w.entered != nil {
		close(w.entered)
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.assignments[userID] = assignee
	return nil
}

func (w *fakeWriter) UpsertProfile(ctx context.Context, actor, userID string, patch domain.ProfilePatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.profiles[userID] = patch
	return nil
}

func (w *fakeWriter) UpsertAnnotation(ctx context.Context, actor string, a domain.OverrideCrmAnnotation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.annotations[a.UserID] = a
	return nil
}

func (w *fakeWriter) ListAssignees(ctx context.Context) ([]string, error) {
	return w.stored, nil
}

type fakeMirror struct {
	mu      sync.Mutex
	updates []domain.CRMUpdate
}

func (m *fakeMirror) UpdateCRM(ctx context.Context, u domain.CRMUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	return nil
}

func rows() []domain.MergedRecord {
	return []domain.MergedRecord{
		{ID: "a-1", UserID: "u-1", FullName: "Jane", TargetCountry: "UAE", TargetJobRole: "Nurse"},
		{ID: "a-2", UserID: "u-2", FullName: "Ravi", Assignee: "other@example.com"},
		{ID: "a-3", UserID: "u-3", FullName: "Asha", Assignee: me, TargetCountry: "Qatar"},
	}
}

func newView(t *testing.T, ds domain.Dataset, l Loader, w Writer, opts ...Option) *View {
	t.Helper()
	v, err := New(Config{Dataset: ds, PageSize: 50, Actor: me, RefetchDelay: 10 * time.Millisecond}, l, w, opts...)
	require.NoError(t, err)
	t.Cleanup(v.Close)
	require.NoError(t, v.Refresh(context.Background()))
	return v
}

func TestStateOf(t *testing.T) {
	require.Equal(t, Unassigned, StateOf("", me))
	require.Equal(t, Unassigned, StateOf("Unassigned", me))
	require.Equal(t, AssignedToSelf, StateOf("ME@example.com", me))
	require.Equal(t, AssignedToOther, StateOf("other@example.com", me))
	require.Equal(t, AssignedToOther, StateOf(me, ""))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Dataset: "bogus", PageSize: 10}, &fakeLoader{}, newWriter())
	require.Error(t, err)
	_, err = New(Config{Dataset: domain.DatasetUsers, PageSize: 0}, &fakeLoader{}, newWriter())
	require.Error(t, err)
}

func TestAssignOptimisticBeforeIO(t *testing.T) {
	w := newWriter()
	w.entered = make(chan struct{})
	w.release = make(chan struct{})
	m := &fakeMirror{}
	v := newView(t, domain.DatasetApplications, &fakeLoader{rows: rows()}, w, WithMirror(m))

	done := make(chan error, 1)
	go func() { done <- v.Assign(context.Background(), "a-1") }()

	<-w.entered
	rec, ok := v.Record("a-1")
	require.True(t, ok)
	require.Equal(t, me, rec.Assignee)
	close(w.release)

	require.NoError(t, <-done)
	require.Equal(t, me, w.assignments["u-1"])
	require.Len(t, m.updates, 1)
	require.Equal(t, domain.CRMUpdate{UserID: "u-1", ApplicationID: "a-1", Assignee: me}, m.updates[0])
}

func TestAssignUserLevelSkipsMirror(t *testing.T) {
	m := &fakeMirror{}
	v := newView(t, domain.DatasetUsers, &fakeLoader{rows: rows()}, newWriter(), WithMirror(m))
	require.NoError(t, v.Assign(context.Background(), "a-1"))
	require.Empty(t, m.updates)
}

func TestAssignPreconditions(t *testing.T) {
	ctx := context.Background()
	v := newView(t, domain.DatasetUsers, &fakeLoader{rows: rows()}, newWriter())

	err := v.Assign(ctx, "a-2")
	require.ErrorIs(t, err, domain.ErrAlreadyAssigned)
	var conflict *domain.AssignmentConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "other@example.com", conflict.Assignee)

	require.ErrorIs(t, v.Assign(ctx, "a-3"), domain.ErrAlreadyAssigned)
	require.ErrorIs(t, v.Assign(ctx, "missing"), domain.ErrUnknownRecord)

	anon, err := New(Config{Dataset: domain.DatasetUsers, PageSize: 10}, &fakeLoader{rows: rows()}, newWriter())
	require.NoError(t, err)
	defer anon.Close()
	require.NoError(t, anon.Refresh(ctx))
	require.ErrorIs(t, anon.Assign(ctx, "a-1"), domain.ErrNoIdentity)
	rec, _ := anon.Record("a-1")
	require.Empty(t, rec.Assignee)
}

func TestAssignFailureRefetches(t *testing.T) {
	w := newWriter()
	w.err = errors.New("overlay down")
	l := &fakeLoader{rows: rows()}
	var alerts []notify.Alert
	n := notify.Func(func(_ context.Context, a notify.Alert) { alerts = append(alerts, a) })
	v := newView(t, domain.DatasetUsers, l, w, WithNotifier(n))

	err := v.Assign(context.Background(), "a-1")
	require.ErrorContains(t, err, "overlay down")
	require.EqualValues(t, 2, l.calls.Load())

	rec, _ := v.Record("a-1")
	require.Empty(t, rec.Assignee)
	require.Len(t, alerts, 1)
	require.Equal(t, "assign", alerts[0].Kind)
	require.Equal(t, "u-1", alerts[0].UserID)
}

func TestRecordActivity(t *testing.T) {
	w := newWriter()
	m := &fakeMirror{}
	l := &fakeLoader{rows: rows()}
	v := newView(t, domain.DatasetApplications, l, w, WithMirror(m))

	gender := "F"
	err := v.RecordActivity(context.Background(), "a-3", domain.Activity{
		Disposition:  "CONNECTED_INTERESTED",
		Notes:        "wants Doha",
		NextCallDate: "2026-11-02",
		Profile:      domain.ProfilePatch{Gender: &gender},
	})
	require.NoError(t, err)

	rec, _ := v.Record("a-3")
	require.Equal(t, "CONNECTED_INTERESTED", rec.Disposition)
	require.Equal(t, "F", rec.Gender)
	require.Equal(t, "Asha", rec.FullName)

	ann := w.annotations["u-3"]
	require.Equal(t, "Asha", ann.FullName)
	require.Equal(t, "Qatar", ann.TargetCountry)
	require.Equal(t, "wants Doha", ann.Notes)
	require.Equal(t, "F", *w.profiles["u-3"].Gender)

	require.Len(t, m.updates, 1)
	require.Equal(t, "a-3", m.updates[0].ApplicationID)
	require.Equal(t, "Qatar", m.updates[0].TargetCountry.Name)

	// no header change, so no delayed refetch
	time.Sleep(30 * time.Millisecond)
	require.EqualValues(t, 1, l.calls.Load())
}

func TestRecordActivityHeaderChangeRefetches(t *testing.T) {
	l := &fakeLoader{rows: rows()}
	v := newView(t, domain.DatasetUsers, l, newWriter())

	err := v.RecordActivity(context.Background(), "a-3", domain.Activity{FullName: "Asha K", TargetCountry: "UAE"})
	require.NoError(t, err)
	rec, _ := v.Record("a-3")
	require.Equal(t, "Asha K", rec.FullName)

	require.Eventually(t, func() bool { return l.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRecordActivityPreconditions(t *testing.T) {
	ctx := context.Background()
	v := newView(t, domain.DatasetUsers, &fakeLoader{rows: rows()}, newWriter())

	require.ErrorIs(t, v.RecordActivity(ctx, "a-1", domain.Activity{Notes: "x"}), domain.ErrNotAssignedToSelf)
	require.ErrorIs(t, v.RecordActivity(ctx, "a-2", domain.Activity{Notes: "x"}), domain.ErrNotAssignedToSelf)
	require.Error(t, v.RecordActivity(ctx, "a-3", domain.Activity{Disposition: "NOPE"}))
}

func TestRecordActivityFailureRefetches(t *testing.T) {
	w := newWriter()
	w.err = errors.New("write failed")
	l := &fakeLoader{rows: rows()}
	v := newView(t, domain.DatasetUsers, l, w)

	err := v.RecordActivity(context.Background(), "a-3", domain.Activity{Notes: "lost"})
	require.Error(t, err)
	require.EqualValues(t, 2, l.calls.Load())
	rec, _ := v.Record("a-3")
	require.Empty(t, rec.Notes)
}

func TestUpdateField(t *testing.T) {
	w := newWriter()
	v := newView(t, domain.DatasetUsers, &fakeLoader{rows: rows()}, w)
	ctx := context.Background()

	require.NoError(t, v.UpdateField(ctx, "u-1", "skills", "welding, rigging"))
	rec, _ := v.Record("a-1")
	require.Equal(t, []string{"welding", "rigging"}, rec.Skills)
	require.Equal(t, []string{"welding", "rigging"}, *w.profiles["u-1"].Skills)

	require.NoError(t, v.UpdateField(ctx, "u-2", "gender", ""))
	_, wrote := w.profiles["u-2"]
	require.False(t, wrote)

	require.ErrorIs(t, v.UpdateField(ctx, "u-9", "gender", "M"), domain.ErrUnknownRecord)
	require.Error(t, v.UpdateField(ctx, "u-1", "passport", "X"))
}

func TestStaleRefreshDiscarded(t *testing.T) {
	gate := make(chan struct{})
	l := &fakeLoader{}
	l.next = func(call int32) (reconcile.Result, error) {
		if call == 1 {
			<-gate
			return reconcile.Result{Records: []domain.MergedRecord{{ID: "old"}}, Total: 1}, nil
		}
		return reconcile.Result{Records: []domain.MergedRecord{{ID: "new"}}, Total: 1}, nil
	}
	v, err := New(Config{Dataset: domain.DatasetUsers, PageSize: 10}, l, newWriter())
	require.NoError(t, err)
	defer v.Close()

	first := make(chan error, 1)
	go func() { first <- v.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return l.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, v.Refresh(context.Background()))
	close(gate)
	require.NoError(t, <-first)

	recs := v.Records()
	require.Len(t, recs, 1)
	require.Equal(t, "new", recs[0].ID)
}

func TestCloseIgnoresLateResponse(t *testing.T) {
	gate := make(chan struct{})
	l := &fakeLoader{}
	l.next = func(int32) (reconcile.Result, error) {
		<-gate
		return reconcile.Result{Records: []domain.MergedRecord{{ID: "late"}}, Total: 1}, nil
	}
	v, err := New(Config{Dataset: domain.DatasetUsers, PageSize: 10}, l, newWriter())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- v.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return l.calls.Load() == 1 }, time.Second, time.Millisecond)

	v.Close()
	close(gate)
	require.NoError(t, <-done)
	require.Empty(t, v.Records())
	require.ErrorIs(t, v.Refresh(context.Background()), ErrClosed)
}

func TestStartPolls(t *testing.T) {
	l := &fakeLoader{rows: rows()}
	v, err := New(Config{Dataset: domain.DatasetUsers, PageSize: 10, PollInterval: 5 * time.Millisecond}, l, newWriter())
	require.NoError(t, err)

	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return l.calls.Load() >= 3 }, time.Second, time.Millisecond)
	v.Close()

	after := l.calls.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, l.calls.Load())
}

func TestAssignees(t *testing.T) {
	w := newWriter()
	w.stored = []string{"zed@example.com", me}
	v := newView(t, domain.DatasetUsers, &fakeLoader{rows: rows()}, w)

	got, err := v.Assignees(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{me, "other@example.com", "zed@example.com"}, got)
}

func TestOnRefreshReceivesAppliedPages(t *testing.T) {
	var (
		mu    sync.Mutex
		seen  []int
		total int
	)
	loader := &fakeLoader{rows: rows()}
	newView(t, domain.DatasetApplications, loader, newWriter(), WithOnRefresh(func(recs []domain.MergedRecord, n int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, len(recs))
		total = n
	}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{3}, seen)
	require.Equal(t, 3, total)
}
