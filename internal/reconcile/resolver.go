// Package reconcile merges primary records with the recruiter overrides
// held in the overlay store.
package reconcile

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/metrics"
)

// ProfileLookup reads user_profiles rows by user id.
type ProfileLookup interface {
	GetMany(ctx context.Context, userIDs []string) (map[string]domain.OverrideProfile, error)
}

// AnnotationLookup reads userflow_crm rows by user id.
type AnnotationLookup interface {
	GetMany(ctx context.Context, userIDs []string) (map[string]domain.OverrideCrmAnnotation, error)
}

// AssignmentLookup reads user_assignments rows by user id.
type AssignmentLookup interface {
	GetMany(ctx context.Context, userIDs []string) (map[string]domain.Assignment, error)
}

// Overrides holds the overlay rows for a set of user ids.
type Overrides struct {
	Profiles    map[string]domain.OverrideProfile
	Annotations map[string]domain.OverrideCrmAnnotation
	Assignments map[string]domain.Assignment
}

// For returns the rows for one user id. Missing rows are nil.
func (o Overrides) For(userID string) (*domain.OverrideProfile, *domain.OverrideCrmAnnotation, *domain.Assignment) {
	var (
		p  *domain.OverrideProfile
		a  *domain.OverrideCrmAnnotation
		as *domain.Assignment
	)
	if v, ok := o.Profiles[userID]; ok {
		p = &v
	}
	if v, ok := o.Annotations[userID]; ok {
		a = &v
	}
	if v, ok := o.Assignments[userID]; ok {
		as = &v
	}
	return p, a, as
}

// Resolver runs the three overlay lookups for a batch of ids.
type Resolver struct {
	profiles    ProfileLookup
	annotations AnnotationLookup
	assignments AssignmentLookup
	metrics     *metrics.Metrics
}

// NewResolver creates a resolver over the overlay tables.
func NewResolver(p ProfileLookup, a AnnotationLookup, as AssignmentLookup, m *metrics.Metrics) *Resolver {
	return &Resolver{profiles: p, annotations: a, assignments: as, metrics: m}
}

// Resolve looks up all overlay rows for ids concurrently, one query per
// table. Empty and duplicate ids are dropped; when nothing remains no query
// is issued. Any failure fails the whole lookup.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (Overrides, error) {
	out := Overrides{
		Profiles:    map[string]domain.OverrideProfile{},
		Annotations: map[string]domain.OverrideCrmAnnotation{},
		Assignments: map[string]domain.Assignment{},
	}
	ids = uniq(ids)
	if len(ids) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.profiles.GetMany(gctx, ids)
		r.metrics.OverlayLookup("user_profiles")
		if err != nil {
			return fmt.Errorf("lookup profiles: %w", err)
		}
		out.Profiles = rows
		return nil
	})
	g.Go(func() error {
		rows, err := r.annotations.GetMany(gctx, ids)
		r.metrics.OverlayLookup("userflow_crm")
		if err != nil {
			return fmt.Errorf("lookup annotations: %w", err)
		}
		out.Annotations = rows
		return nil
	})
	g.Go(func() error {
		rows, err := r.assignments.GetMany(gctx, ids)
		r.metrics.OverlayLookup("user_assignments")
		if err != nil {
			return fmt.Errorf("lookup assignments: %w", err)
		}
		out.Assignments = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overrides{}, err
	}
	return out, nil
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
