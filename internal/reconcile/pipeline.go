package reconcile

import (
	"context"
	"fmt"

	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/fetcher"
	"github.com/lherron/crmq/internal/filter"
)

// Result is one merged page of a view.
type Result struct {
	Records []domain.MergedRecord
	// Total is the count reported by the primary API (or the number of
	// search matches). Client-side post-filters do not change it.
	Total int
}

// Pipeline fetches a page, resolves overrides and merges them.
type Pipeline struct {
	Users        *fetcher.Fetcher[domain.Candidate]
	Applications *fetcher.Fetcher[domain.Application]
	Resolver     *Resolver
}

// Load builds one page of merged records for a dataset. A free-text filter
// on the user-level dataset switches to client-side search.
func (p *Pipeline) Load(ctx context.Context, dataset domain.Dataset, f domain.Filters, page, size int) (Result, error) {
	switch dataset {
	case domain.DatasetUsers:
		return p.loadUsers(ctx, f, page, size)
	case domain.DatasetApplications:
		return p.loadApplications(ctx, f, page, size)
	default:
		return Result{}, domain.ValidateDataset(dataset)
	}
}

func (p *Pipeline) loadUsers(ctx context.Context, f domain.Filters, page, size int) (Result, error) {
	var (
		res []domain.Candidate
		tot int
	)
	if f.UserInfo != "" {
		pg, err := p.Users.Search(ctx, f, f.UserInfo, page, size)
		if err != nil {
			return Result{}, fmt.Errorf("search users: %w", err)
		}
		res, tot = pg.Data, pg.Total
	} else {
		pg, err := p.Users.FetchPage(ctx, f, page, size)
		if err != nil {
			return Result{}, fmt.Errorf("fetch users: %w", err)
		}
		res, tot = pg.Data, pg.Total
	}

	records, err := p.MergeUsers(ctx, res)
	if err != nil {
		return Result{}, err
	}
	return Result{Records: filter.View(records, f), Total: tot}, nil
}

func (p *Pipeline) loadApplications(ctx context.Context, f domain.Filters, page, size int) (Result, error) {
	pg, err := p.Applications.FetchPage(ctx, f, page, size)
	if err != nil {
		return Result{}, fmt.Errorf("fetch applications: %w", err)
	}
	records, err := p.MergeApplications(ctx, pg.Data)
	if err != nil {
		return Result{}, err
	}
	return Result{Records: filter.View(records, f), Total: pg.Total}, nil
}

// MergeUsers resolves overrides for candidates and merges them.
func (p *Pipeline) MergeUsers(ctx context.Context, cands []domain.Candidate) ([]domain.MergedRecord, error) {
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.ID.String())
	}
	ov, err := p.Resolver.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MergedRecord, 0, len(cands))
	for _, c := range cands {
		prof, ann, asg := ov.For(c.ID.String())
		out = append(out, MergeUser(c, prof, ann, asg))
	}
	return out, nil
}

// MergeApplications resolves overrides keyed by each application's
// candidate id and merges them.
func (p *Pipeline) MergeApplications(ctx context.Context, apps []domain.Application) ([]domain.MergedRecord, error) {
	ids := make([]string, 0, len(apps))
	for i := range apps {
		ids = append(ids, apps[i].CandidateID().String())
	}
	ov, err := p.Resolver.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MergedRecord, 0, len(apps))
	for _, a := range apps {
		prof, ann, asg := ov.For(a.CandidateID().String())
		out = append(out, MergeApplication(a, prof, ann, asg))
	}
	return out, nil
}

// PrimaryOnly maps candidates without consulting the overlay store.
func PrimaryOnly(cands []domain.Candidate) []domain.MergedRecord {
	out := make([]domain.MergedRecord, 0, len(cands))
	for _, c := range cands {
		out = append(out, MergeUser(c, nil, nil, nil))
	}
	return out
}

// PrimaryOnlyApplications maps applications without consulting the overlay
// store.
func PrimaryOnlyApplications(apps []domain.Application) []domain.MergedRecord {
	out := make([]domain.MergedRecord, 0, len(apps))
	for _, a := range apps {
		out = append(out, MergeApplication(a, nil, nil, nil))
	}
	return out
}
