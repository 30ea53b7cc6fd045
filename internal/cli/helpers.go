package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/notify"
	"github.com/lherron/crmq/internal/reconcile"
	"github.com/lherron/crmq/internal/render"
	"github.com/lherron/crmq/internal/view"
)

// Exit codes beyond the generic failure.
const (
	ExitNoIdentity = 3
	ExitConflict   = 4
	ExitPartial    = 5
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	var conflict *domain.AssignmentConflictError
	switch {
	case errors.Is(err, domain.ErrNoIdentity):
		return ExitNoIdentity
	case errors.As(err, &conflict), errors.Is(err, domain.ErrNotAssignedToSelf), errors.Is(err, domain.ErrExportInProgress):
		return ExitConflict
	}
	return 1
}

func newRenderer(app *appctx.App, cmd *cobra.Command) (*render.Renderer, error) {
	format, err := render.ParseFormat(app.Config.Output)
	if err != nil {
		return nil, err
	}
	return render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format, MaxWidth: 40}), nil
}

// parseDataset accepts users/apps shorthands. No argument means users.
func parseDataset(args []string) (domain.Dataset, error) {
	if len(args) == 0 {
		return domain.DatasetUsers, nil
	}
	switch strings.ToLower(args[0]) {
	case "users", "user", "user-level":
		return domain.DatasetUsers, nil
	case "apps", "app", "applications", "application-level":
		return domain.DatasetApplications, nil
	}
	return "", fmt.Errorf("unknown dataset %q: expected users or apps", args[0])
}

func datasetOf(apps bool) domain.Dataset {
	if apps {
		return domain.DatasetApplications
	}
	return domain.DatasetUsers
}

// filterFlags are the view filters shared by list, watch and export.
type filterFlags struct {
	search      string
	country     string
	jobRole     string
	disposition string
	assignee    string
	applied     string
	missing     string
	start       string
	end         string
	mine        bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.search, "search", "s", "", "Free-text search on name, phone or id")
	fl.StringVar(&f.country, "country", "", "Target country")
	fl.StringVar(&f.jobRole, "job-role", "", "Target job role")
	fl.StringVar(&f.disposition, "disposition", "", "Call disposition")
	fl.StringVar(&f.assignee, "assignee", "", "Assignee email, or Unassigned")
	fl.StringVar(&f.applied, "applied", "", "Applied filter (yes or no)")
	fl.StringVar(&f.missing, "missing-details", "", "Missing details filter (yes or no)")
	fl.StringVar(&f.start, "start", "", "Created on or after (YYYY-MM-DD)")
	fl.StringVar(&f.end, "end", "", "Created on or before (YYYY-MM-DD)")
	fl.BoolVar(&f.mine, "mine", false, "Only records assigned to me")
}

func (f *filterFlags) build(actor string) (domain.Filters, error) {
	filters := domain.Filters{
		UserInfo:    strings.TrimSpace(f.search),
		Country:     f.country,
		JobRole:     f.jobRole,
		Disposition: f.disposition,
		Assignee:    f.assignee,
		StartDate:   f.start,
		EndDate:     f.end,
	}
	switch strings.ToLower(f.applied) {
	case "":
	case "y", "yes":
		filters.Applied = "Y"
	case "n", "no":
		filters.Applied = "N"
	default:
		return filters, fmt.Errorf("invalid applied filter %q: expected yes or no", f.applied)
	}
	switch strings.ToLower(f.missing) {
	case "":
	case "yes":
		filters.MissingDetails = domain.MissingDetailsYes
	case "no":
		filters.MissingDetails = domain.MissingDetailsNo
	default:
		return filters, fmt.Errorf("invalid missing-details filter %q: expected yes or no", f.missing)
	}
	if err := domain.ValidateDisposition(filters.Disposition); err != nil {
		return filters, err
	}
	if err := errors.Join(domain.ValidateDay(filters.StartDate), domain.ValidateDay(filters.EndDate)); err != nil {
		return filters, err
	}
	if f.mine {
		if actor == "" {
			return filters, domain.ErrNoIdentity
		}
		filters.Assignee = actor
	}
	return filters, nil
}

// idLoader loads exactly the records named on the command line, so
// mutations can run through a view without paging to them first.
type idLoader struct {
	app *appctx.App
	ids []string
}

func (l *idLoader) Load(ctx context.Context, dataset domain.Dataset, _ domain.Filters, _, _ int) (reconcile.Result, error) {
	p := l.app.Pipeline()
	switch dataset {
	case domain.DatasetUsers:
		cands := make([]domain.Candidate, 0, len(l.ids))
		for _, id := range l.ids {
			c, err := l.app.Primary.UserDetails(ctx, id)
			if err != nil {
				return reconcile.Result{}, fmt.Errorf("load user %s: %w", id, err)
			}
			cands = append(cands, c)
		}
		records, err := p.MergeUsers(ctx, cands)
		return reconcile.Result{Records: records, Total: len(records)}, err
	case domain.DatasetApplications:
		// The application-level query searches ids server side; the
		// substring match is narrowed to the exact id here.
		var apps []domain.Application
		seen := make(map[string]bool, len(l.ids))
		for _, id := range l.ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			found, err := p.Applications.FetchAll(ctx, domain.Filters{UserInfo: id}, domain.MaxPageSize)
			if err != nil {
				return reconcile.Result{}, fmt.Errorf("load application %s: %w", id, err)
			}
			if i := slices.IndexFunc(found, func(a domain.Application) bool { return string(a.ID) == id }); i >= 0 {
				apps = append(apps, found[i])
			}
		}
		records, err := p.MergeApplications(ctx, apps)
		return reconcile.Result{Records: records, Total: len(records)}, err
	}
	return reconcile.Result{}, domain.ValidateDataset(dataset)
}

// recordView builds a view over the given record ids for mutations by
// actor. Failed writes are reported to n.
func recordView(ctx context.Context, app *appctx.App, actor string, dataset domain.Dataset, ids []string, n notify.Notifier) (*view.View, error) {
	if len(ids) > domain.MaxPageSize {
		return nil, fmt.Errorf("too many records: at most %d per call", domain.MaxPageSize)
	}
	v, err := view.New(view.Config{
		Dataset:      dataset,
		Page:         1,
		PageSize:     max(len(ids), 1),
		Actor:        actor,
		RefetchDelay: app.Config.RefetchDelay,
	}, &idLoader{app: app, ids: ids}, app.Store,
		view.WithMirror(app.Primary),
		view.WithNotifier(n),
		view.WithLogger(app.Log),
		view.WithMetrics(app.Metrics),
	)
	if err != nil {
		return nil, err
	}
	if err := v.Refresh(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// commandContext returns the command's context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// redactDSN hides the password of a postgres URL DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func stderrNotifier(cmd *cobra.Command) notify.Notifier {
	return notify.NewWriter(cmd.ErrOrStderr())
}
