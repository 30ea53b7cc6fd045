// Package view holds the record list of one screen (dataset, filters, page)
// and applies recruiter mutations to it optimistically.
package view

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/metrics"
	"github.com/lherron/crmq/internal/notify"
	"github.com/lherron/crmq/internal/parse"
	"github.com/lherron/crmq/internal/reconcile"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultRefetchDelay = 500 * time.Millisecond
)

// ErrClosed is returned by operations on a closed view.
var ErrClosed = errors.New("view is closed")

// Loader produces one merged page. *reconcile.Pipeline implements it.
type Loader interface {
	Load(ctx context.Context, dataset domain.Dataset, f domain.Filters, page, size int) (reconcile.Result, error)
}

// Writer persists overlay rows.
type Writer interface {
	UpsertAssignment(ctx context.Context, actor, userID, assignee string) error
	UpsertProfile(ctx context.Context, actor, userID string, patch domain.ProfilePatch) error
	UpsertAnnotation(ctx context.Context, actor string, a domain.OverrideCrmAnnotation) error
	ListAssignees(ctx context.Context) ([]string, error)
}

// Mirror receives the denormalised crm-update notification. *primary.Client
// implements it.
type Mirror interface {
	UpdateCRM(ctx context.Context, update domain.CRMUpdate) error
}

// State is a record's assignment state relative to the acting recruiter.
type State int

const (
	Unassigned State = iota
	AssignedToOther
	AssignedToSelf
)

func (s State) String() string {
	switch s {
	case Unassigned:
		return "unassigned"
	case AssignedToOther:
		return "assigned-to-other"
	case AssignedToSelf:
		return "assigned-to-self"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StateOf classifies an assignee for actor. The empty string and the
// Unassigned sentinel both mean unassigned; emails compare case-insensitively.
func StateOf(assignee, actor string) State {
	assignee = strings.TrimSpace(assignee)
	switch {
	case assignee == "" || strings.EqualFold(assignee, domain.AssigneeUnassigned):
		return Unassigned
	case actor != "" && strings.EqualFold(assignee, actor):
		return AssignedToSelf
	default:
		return AssignedToOther
	}
}

// Config selects what a view shows and who is acting.
type Config struct {
	Dataset      domain.Dataset
	Filters      domain.Filters
	Page         int
	PageSize     int
	Actor        string
	PollInterval time.Duration
	RefetchDelay time.Duration
}

// Option configures a View.
type Option func(*View)

// WithMirror sets the primary crm-update target.
func WithMirror(m Mirror) Option {
	return func(v *View) { v.mirror = m }
}

// WithNotifier sets where failed actions are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(v *View) {
		if n != nil {
			v.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *View) {
		if l != nil {
			v.log = l
		}
	}
}

// WithOnRefresh registers fn to receive every applied refresh. It runs on
// the refreshing goroutine.
func WithOnRefresh(fn func(records []domain.MergedRecord, total int)) Option {
	return func(v *View) { v.onRefresh = fn }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *View) { v.metrics = m }
}

// View owns the record list of one screen. Views never share state.
type View struct {
	cfg      Config
	loader   Loader
	writer   Writer
	mirror   Mirror
	notifier notify.Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics

	onRefresh func([]domain.MergedRecord, int)

	// cycle is the token of the latest issued refresh.
	cycle atomic.Uint64

	mu      sync.Mutex
	records []domain.MergedRecord
	total   int
	closed  bool
	bg      context.Context
	cancel  context.CancelFunc
	timers  map[*time.Timer]struct{}
	wg      sync.WaitGroup
}

// New creates a view. Nothing is fetched until Refresh or Start.
func New(cfg Config, loader Loader, writer Writer, opts ...Option) (*View, error) {
	if err := domain.ValidateDataset(cfg.Dataset); err != nil {
		return nil, err
	}
	if cfg.Page == 0 {
		cfg.Page = 1
	}
	if err := domain.ValidatePage(cfg.Page, cfg.PageSize); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RefetchDelay <= 0 {
		cfg.RefetchDelay = DefaultRefetchDelay
	}
	cfg.Actor = strings.TrimSpace(cfg.Actor)

	v := &View{
		cfg:      cfg,
		loader:   loader,
		writer:   writer,
		notifier: notify.Nop,
		log:      zap.NewNop(),
		bg:       context.Background(),
		timers:   make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.With(zap.String("dataset", string(cfg.Dataset)), zap.Int("page", cfg.Page))
	return v, nil
}

// Config returns the view configuration.
func (v *View) Config() Config {
	return v.cfg
}

// Records returns a copy of the current record list.
func (v *View) Records() []domain.MergedRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.records)
}

// Total returns the server-side count for the current filters.
func (v *View) Total() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}

// Record returns the record with the given id.
func (v *View) Record(recordID string) (domain.MergedRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexLocked(recordID); i >= 0 {
		return v.records[i], true
	}
	return domain.MergedRecord{}, false
}

// State returns the assignment state of a record for the acting recruiter.
func (v *View) State(recordID string) (State, error) {
	rec, ok := v.Record(recordID)
	if !ok {
		return Unassigned, unknownRecord(recordID)
	}
	return StateOf(rec.Assignee, v.cfg.Actor), nil
}

// Refresh fetches and merges the page. The result is applied only if no
// newer refresh has been issued since and the view is still open; stale
// results are dropped without error.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return ErrClosed
	}

	token := v.cycle.Add(1)
	res, err := v.loader.Load(ctx, v.cfg.Dataset, v.cfg.Filters, v.cfg.Page, v.cfg.PageSize)

	v.mu.Lock()
	if v.closed || token != v.cycle.Load() {
		v.mu.Unlock()
		v.metrics.StaleCycle(string(v.cfg.Dataset))
		v.log.Debug("discarding stale refresh", zap.Uint64("cycle", token), zap.Error(err))
		return nil
	}
	if err != nil {
		v.mu.Unlock()
		return fmt.Errorf("refresh %s view: %w", v.cfg.Dataset, err)
	}
	v.records = res.Records
	v.total = res.Total
	v.mu.Unlock()

	if v.onRefresh != nil {
		v.onRefresh(slices.Clone(res.Records), res.Total)
	}
	return nil
}

// Start loads the view and polls it every PollInterval until ctx is done or
// Close is called.
func (v *View) Start(ctx context.Context) error {
	if err := v.Refresh(ctx); err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.cancel != nil {
		v.mu.Unlock()
		return fmt.Errorf("view already started")
	}
	pollCtx, cancel := context.WithCancel(ctx)
	v.bg, v.cancel = pollCtx, cancel
	v.wg.Add(1)
	v.mu.Unlock()

	go v.poll(pollCtx)
	return nil
}

func (v *View) poll(ctx context.Context) {
	defer v.wg.Done()
	t := time.NewTicker(v.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// ticks may overlap a slow refresh; the cycle token keeps the
			// latest one authoritative
			v.mu.Lock()
			if v.closed {
				v.mu.Unlock()
				return
			}
			v.wg.Add(1)
			v.mu.Unlock()
			go func() {
				defer v.wg.Done()
				if err := v.Refresh(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, ErrClosed) {
					v.log.Warn("poll refresh failed", zap.Error(err))
				}
			}()
		}
	}
}

// Close stops polling and pending delayed refetches. Responses that arrive
// afterwards are ignored. Close waits for in-flight background refreshes.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	if v.cancel != nil {
		v.cancel()
	}
	for t := range v.timers {
		if t.Stop() {
			v.wg.Done()
		}
		delete(v.timers, t)
	}
	v.mu.Unlock()
	v.wg.Wait()
}

// scheduleRefetch refreshes the view after RefetchDelay.
func (v *View) scheduleRefetch() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	ctx := v.bg
	v.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(v.cfg.RefetchDelay, func() {
		defer v.wg.Done()
		v.mu.Lock()
		delete(v.timers, t)
		v.mu.Unlock()
		if err := v.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
			v.log.Warn("delayed refetch failed", zap.Error(err))
		}
	})
	v.timers[t] = struct{}{}
}

// fail reports a failed mutation and reloads the view so the optimistic
// patch is replaced by stored state.
func (v *View) fail(ctx context.Context, kind, userID, message string, err error) {
	v.log.Error(message, zap.String("kind", kind), zap.String("user_id", userID), zap.Error(err))
	v.notifier.Notify(ctx, notify.NewAlert(kind, userID, v.cfg.Actor, message, err))
	if rerr := v.Refresh(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, ErrClosed) {
		v.log.Warn("refetch after failure failed", zap.Error(rerr))
	}
}

func (v *View) indexLocked(recordID string) int {
	for i := range v.records {
		if v.records[i].ID == recordID {
			return i
		}
	}
	return -1
}

func unknownRecord(recordID string) error {
	return fmt.Errorf("%w: %s", domain.ErrUnknownRecord, recordID)
}

// Assign claims an unassigned record for the acting recruiter. The record
// shows the new assignee before any I/O starts.
func (v *View) Assign(ctx context.Context, recordID string) error {
	actor := v.cfg.Actor
	if actor == "" {
		return domain.ErrNoIdentity
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	i := v.indexLocked(recordID)
	if i < 0 {
		v.mu.Unlock()
		return unknownRecord(recordID)
	}
	rec := v.records[i]
	if StateOf(rec.Assignee, actor) != Unassigned {
		v.mu.Unlock()
		return &domain.AssignmentConflictError{UserID: rec.UserID, Assignee: rec.Assignee}
	}
	if rec.UserID == "" {
		v.mu.Unlock()
		return fmt.Errorf("record %s has no candidate id", recordID)
	}
	v.records[i].Assignee = actor
	v.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return v.writer.UpsertAssignment(gctx, actor, rec.UserID, actor)
	})
	if v.cfg.Dataset == domain.DatasetApplications && v.mirror != nil {
		g.Go(func() error {
			return v.mirror.UpdateCRM(gctx, domain.CRMUpdate{
				UserID:        rec.UserID,
				ApplicationID: rec.ID,
				Assignee:      actor,
			})
		})
	}
	err := g.Wait()
	v.metrics.Mutation("assign", err)
	if err != nil {
		v.fail(ctx, "assign", rec.UserID, "failed to assign record", err)
		return fmt.Errorf("assign %s: %w", recordID, err)
	}
	v.log.Info("assigned", zap.String("record", recordID), zap.String("user_id", rec.UserID), zap.String("actor", actor))
	return nil
}

// RecordActivity saves a call outcome for a record assigned to the acting
// recruiter. Profile fields, the annotation row and the crm-update summary
// are written concurrently. A changed name or target refreshes the view
// after RefetchDelay.
func (v *View) RecordActivity(ctx context.Context, recordID string, act domain.Activity) error {
	actor := v.cfg.Actor
	if actor == "" {
		return domain.ErrNoIdentity
	}
	if err := act.Validate(); err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	i := v.indexLocked(recordID)
	if i < 0 {
		v.mu.Unlock()
		return unknownRecord(recordID)
	}
	orig := v.records[i]
	if StateOf(orig.Assignee, actor) != AssignedToSelf {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotAssignedToSelf, recordID)
	}
	if orig.UserID == "" {
		v.mu.Unlock()
		return fmt.Errorf("record %s has no candidate id", recordID)
	}
	updated := applyActivity(orig, act)
	v.records[i] = updated
	v.mu.Unlock()

	ann := domain.OverrideCrmAnnotation{
		UserID:          orig.UserID,
		FullName:        updated.FullName,
		TargetCountry:   updated.TargetCountry,
		TargetJobRole:   updated.TargetJobRole,
		TargetCountryID: updated.TargetCountryID,
		TargetJobRoleID: updated.TargetJobRoleID,
		CallDisposition: updated.Disposition,
		Notes:           updated.Notes,
		NextCallDate:    updated.NextCallDate,
	}
	summary := domain.CRMUpdate{
		UserID:          orig.UserID,
		CallDisposition: updated.Disposition,
		Notes:           updated.Notes,
		NextCallDate:    updated.NextCallDate,
		FullName:        updated.FullName,
		TargetCountry:   &domain.NamedRef{ID: updated.TargetCountryID, Name: updated.TargetCountry},
		TargetJobRole:   &domain.NamedRef{ID: updated.TargetJobRoleID, Name: updated.TargetJobRole},
	}
	if v.cfg.Dataset == domain.DatasetApplications {
		summary.ApplicationID = orig.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	if !act.Profile.IsEmpty() {
		g.Go(func() error {
			return v.writer.UpsertProfile(gctx, actor, orig.UserID, act.Profile)
		})
	}
	g.Go(func() error {
		return v.writer.UpsertAnnotation(gctx, actor, ann)
	})
	if v.mirror != nil {
		g.Go(func() error {
			return v.mirror.UpdateCRM(gctx, summary)
		})
	}
	err := g.Wait()
	v.metrics.Mutation("activity", err)
	if err != nil {
		v.fail(ctx, "activity", orig.UserID, "failed to save activity", err)
		return fmt.Errorf("record activity for %s: %w", recordID, err)
	}

	if updated.FullName != orig.FullName || updated.TargetCountry != orig.TargetCountry || updated.TargetJobRole != orig.TargetJobRole {
		v.scheduleRefetch()
	}
	v.log.Info("activity saved", zap.String("record", recordID), zap.String("disposition", updated.Disposition))
	return nil
}

// applyActivity returns r with the activity applied. Empty activity fields
// keep the current value.
func applyActivity(r domain.MergedRecord, act domain.Activity) domain.MergedRecord {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&r.Disposition, act.Disposition)
	set(&r.Notes, act.Notes)
	set(&r.NextCallDate, act.NextCallDate)
	set(&r.FullName, act.FullName)
	if name := strings.TrimSpace(act.TargetCountry); name != "" {
		r.TargetCountry = name
		r.TargetCountryID = act.TargetCountryID
	}
	if name := strings.TrimSpace(act.TargetJobRole); name != "" {
		r.TargetJobRole = name
		r.TargetJobRoleID = act.TargetJobRoleID
	}
	return applyPatch(r, act.Profile)
}

func applyPatch(r domain.MergedRecord, p domain.ProfilePatch) domain.MergedRecord {
	if p.Skills != nil {
		r.Skills = slices.Clone(*p.Skills)
	}
	if p.Language != nil {
		l := *p.Language
		l.Other = slices.Clone(l.Other)
		r.Language = &l
	}
	if p.Education != nil {
		r.Education = slices.Clone(*p.Education)
	}
	if p.Experience != nil {
		r.Experience = slices.Clone(*p.Experience)
	}
	if p.DOB != nil {
		r.DOB = *p.DOB
	}
	if p.Gender != nil {
		r.Gender = *p.Gender
	}
	if p.Location != nil {
		l := *p.Location
		r.Location = &l
	}
	if p.InternationalExp != nil {
		n := *p.InternationalExp
		r.InternationalExp = &n
	}
	if p.DomesticExp != nil {
		n := *p.DomesticExp
		r.DomesticExp = &n
	}
	return r
}

// UpdateField applies one inline profile edit to every record of userID and
// saves it as a profile override. An empty value does nothing.
func (v *View) UpdateField(ctx context.Context, userID, field, value string) error {
	patch, err := parse.ParseField(field, value)
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	found := false
	for i := range v.records {
		if v.records[i].UserID == userID {
			v.records[i] = applyPatch(v.records[i], patch)
			found = true
		}
	}
	v.mu.Unlock()
	if !found {
		return unknownRecord(userID)
	}

	err = v.writer.UpsertProfile(ctx, v.cfg.Actor, userID, patch)
	v.metrics.Mutation("profile", err)
	if err != nil {
		v.fail(ctx, "profile", userID, "failed to update "+field, err)
		return fmt.Errorf("update %s for %s: %w", field, userID, err)
	}
	return nil
}

// Assignees returns the sorted union of overlay assignees and the assignees
// visible in the current records.
func (v *View) Assignees(ctx context.Context) ([]string, error) {
	stored, err := v.writer.ListAssignees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	seen := make(map[string]struct{}, len(stored))
	add := func(who string) {
		if StateOf(who, "") == Unassigned {
			return
		}
		seen[strings.TrimSpace(who)] = struct{}{}
	}
	for _, who := range stored {
		add(who)
	}
	v.mu.Lock()
	for i := range v.records {
		add(v.records[i].Assignee)
	}
	v.mu.Unlock()

	out := make([]string, 0, len(seen))
	for who := range seen {
		out = append(out, who)
	}
	slices.Sort(out)
	return out, nil
}
