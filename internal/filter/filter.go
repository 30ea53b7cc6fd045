// Package filter holds the client-side predicates applied to merged
// records after they come back from the primary API.
package filter

import (
	"strings"
	"time"

	"github.com/lherron/crmq/internal/domain"
)

// Predicate selects records.
type Predicate func(r *domain.MergedRecord) bool

// Keep returns the records matching every predicate. Nil predicates are
// skipped. The input slice is not modified.
func Keep(records []domain.MergedRecord, preds ...Predicate) []domain.MergedRecord {
	active := preds[:0:0]
	for _, p := range preds {
		if p != nil {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return records
	}
	out := make([]domain.MergedRecord, 0, len(records))
outer:
	for i := range records {
		for _, p := range active {
			if !p(&records[i]) {
				continue outer
			}
		}
		out = append(out, records[i])
	}
	return out
}

// MissingDetails implements the tri-state filter: Yes keeps records lacking
// a full name, target country or target job role; No keeps the complete
// ones; empty keeps everything.
func MissingDetails(m domain.MissingDetails) Predicate {
	switch m {
	case domain.MissingDetailsYes:
		return func(r *domain.MergedRecord) bool { return r.MissingDetails() }
	case domain.MissingDetailsNo:
		return func(r *domain.MergedRecord) bool { return !r.MissingDetails() }
	default:
		return nil
	}
}

// DateRange keeps records created within [start, end], both YYYY-MM-DD and
// inclusive. Either bound may be empty. Records without a parseable
// creation date are dropped once any bound is set.
func DateRange(start, end string) Predicate {
	if start == "" && end == "" {
		return nil
	}
	var from, to time.Time
	if start != "" {
		if t, err := time.Parse("2006-01-02", start); err == nil {
			from = t
		}
	}
	if end != "" {
		if t, err := time.Parse("2006-01-02", end); err == nil {
			to = t.AddDate(0, 0, 1)
		}
	}
	return func(r *domain.MergedRecord) bool {
		created, ok := r.CreatedAt.Time()
		if !ok {
			return false
		}
		if !from.IsZero() && created.Before(from) {
			return false
		}
		if !to.IsZero() && !created.Before(to) {
			return false
		}
		return true
	}
}

// Text keeps records whose name, phone number or ids contain term,
// case-insensitively.
func Text(term string) Predicate {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}
	return func(r *domain.MergedRecord) bool {
		for _, field := range []string{r.FullName, r.PhoneNumber, r.ID, r.UserID} {
			if field != "" && strings.Contains(strings.ToLower(field), term) {
				return true
			}
		}
		return false
	}
}

// Subset keeps addressed (disposition set) or unaddressed records.
func Subset(s domain.Subset) Predicate {
	switch s {
	case domain.SubsetAddressed:
		return func(r *domain.MergedRecord) bool { return r.Addressed() }
	case domain.SubsetUnaddressed:
		return func(r *domain.MergedRecord) bool { return !r.Addressed() }
	default:
		return nil
	}
}

// Assignee keeps records assigned to who.
func Assignee(who string) Predicate {
	if who == "" {
		return nil
	}
	return func(r *domain.MergedRecord) bool { return r.Assignee == who }
}

// View applies the post-filters of a live view.
func View(records []domain.MergedRecord, f domain.Filters) []domain.MergedRecord {
	return Keep(records, MissingDetails(f.MissingDetails), DateRange(f.StartDate, f.EndDate))
}

// Export applies the live-view post-filters plus free text and the subset.
func Export(records []domain.MergedRecord, f domain.Filters, s domain.Subset) []domain.MergedRecord {
	return Keep(records,
		Text(f.UserInfo),
		MissingDetails(f.MissingDetails),
		DateRange(f.StartDate, f.EndDate),
		Subset(s),
	)
}
