// Package fetcher reads pages of primary records: one page, every page in
// bounded batches, or every page filtered locally by a search term.
package fetcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/logging"
	"github.com/lherron/crmq/internal/primary"
)

const (
	// BatchWidth is how many page requests race at once in FetchAll.
	BatchWidth = 5
	// SearchPageSize is the page size used to pull the full dataset for a
	// client-side search.
	SearchPageSize = 200
	// MaxTotal bounds the record count FetchAll accepts from the server.
	MaxTotal = 5_000_000
)

// Source serves one page of records.
type Source[T any] interface {
	Fetch(ctx context.Context, q primary.Query) (primary.Page[T], error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, q primary.Query) (primary.Page[T], error)

// Fetch calls f.
func (f SourceFunc[T]) Fetch(ctx context.Context, q primary.Query) (primary.Page[T], error) {
	return f(ctx, q)
}

// Matcher reports whether a record matches a lowercased search term.
type Matcher[T any] func(record T, term string) bool

// Fetcher reads records of one dataset.
type Fetcher[T any] struct {
	src    Source[T]
	match  Matcher[T]
	logger *zap.Logger
}

// New creates a fetcher. match may be nil when the dataset is never
// searched client-side.
func New[T any](src Source[T], match Matcher[T], logger *zap.Logger) *Fetcher[T] {
	return &Fetcher[T]{src: src, match: match, logger: logging.OrNop(logger)}
}

// Users builds the user-level fetcher over a primary client.
func Users(c *primary.Client, logger *zap.Logger) *Fetcher[domain.Candidate] {
	return New[domain.Candidate](SourceFunc[domain.Candidate](c.UserLevel), MatchCandidate, logger)
}

// Applications builds the application-level fetcher over a primary client.
func Applications(c *primary.Client, logger *zap.Logger) *Fetcher[domain.Application] {
	return New[domain.Application](SourceFunc[domain.Application](c.ApplicationLevel), MatchApplication, logger)
}

// FetchPage fetches a single page.
func (f *Fetcher[T]) FetchPage(ctx context.Context, filters domain.Filters, page, size int) (primary.Page[T], error) {
	if err := domain.ValidatePage(page, size); err != nil {
		return primary.Page[T]{}, err
	}
	return f.src.Fetch(ctx, primary.Query{Page: page, Limit: size, Filters: filters})
}

// FetchAll fetches page 1 to learn the total, then the remaining pages in
// sequential batches of BatchWidth concurrent requests. Any failure aborts
// the whole fetch and no partial result is returned.
func (f *Fetcher[T]) FetchAll(ctx context.Context, filters domain.Filters, size int) ([]T, error) {
	first, err := f.FetchPage(ctx, filters, 1, size)
	if err != nil {
		return nil, fmt.Errorf("fetch page 1: %w", err)
	}

	if first.Total < 0 || first.Total > MaxTotal {
		return nil, fmt.Errorf("fetch page 1: implausible total %d", first.Total)
	}
	pages := PageCount(first.Total, size)
	if pages <= 1 {
		return first.Data, nil
	}

	results := make([][]T, pages+1)
	results[1] = first.Data
	for start := 2; start <= pages; start += BatchWidth {
		end := min(start+BatchWidth-1, pages)
		f.logger.Debug("fetching batch", zap.Int("from", start), zap.Int("to", end), zap.Int("pages", pages))

		g, gctx := errgroup.WithContext(ctx)
		for p := start; p <= end; p++ {
			g.Go(func() error {
				res, err := f.src.Fetch(gctx, primary.Query{Page: p, Limit: size, Filters: filters})
				if err != nil {
					return fmt.Errorf("fetch page %d: %w", p, err)
				}
				results[p] = res.Data
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	all := make([]T, 0, first.Total)
	for _, chunk := range results[1:] {
		all = append(all, chunk...)
	}
	return all, nil
}

// Search fetches the whole dataset without the free-text filter, keeps the
// records matching term and returns the requested window of the matches.
// Total is the number of matches.
func (f *Fetcher[T]) Search(ctx context.Context, filters domain.Filters, term string, page, size int) (primary.Page[T], error) {
	if f.match == nil {
		return primary.Page[T]{}, fmt.Errorf("search is not supported for this dataset")
	}
	if err := domain.ValidatePage(page, size); err != nil {
		return primary.Page[T]{}, err
	}
	filters.UserInfo = ""
	all, err := f.FetchAll(ctx, filters, SearchPageSize)
	if err != nil {
		return primary.Page[T]{}, err
	}

	matches := Filter(all, term, f.match)
	lo := min((page-1)*size, len(matches))
	hi := min(lo+size, len(matches))
	return primary.Page[T]{Data: matches[lo:hi], Total: len(matches)}, nil
}

// Filter keeps the records matching term. An empty term keeps everything.
func Filter[T any](records []T, term string, match Matcher[T]) []T {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return records
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		if match(r, term) {
			out = append(out, r)
		}
	}
	return out
}

// PageCount is ceil(total/size), and at least 1.
func PageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 1
	}
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return pages
}

// MatchCandidate matches full name, phone number and id.
func MatchCandidate(c domain.Candidate, term string) bool {
	return containsFold(c.FullName, term) ||
		containsFold(c.PhoneNumber, term) ||
		containsFold(c.ID.String(), term)
}

// MatchApplication matches the applicant's name, phone number and the
// application and candidate ids.
func MatchApplication(a domain.Application, term string) bool {
	name, phone := a.FullName, a.PhoneNumber
	if u := a.User.Candidate; u != nil {
		if u.FullName != "" {
			name = u.FullName
		}
		if u.PhoneNumber != "" {
			phone = u.PhoneNumber
		}
	}
	return containsFold(name, term) ||
		containsFold(phone, term) ||
		containsFold(a.ID.String(), term) ||
		containsFold(a.CandidateID().String(), term)
}

func containsFold(s, lowerTerm string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerTerm)
}
