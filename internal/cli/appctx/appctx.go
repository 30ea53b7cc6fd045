// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger setup, overlay database opening,
// primary API client construction and actor resolution.
package appctx

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lherron/crmq/internal/config"
	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/fetcher"
	"github.com/lherron/crmq/internal/logging"
	"github.com/lherron/crmq/internal/metrics"
	"github.com/lherron/crmq/internal/primary"
	"github.com/lherron/crmq/internal/reconcile"
	"github.com/lherron/crmq/internal/store"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	Log     *zap.Logger
	Metrics *metrics.Metrics

	// DB and Store are nil unless NeedsDB is set.
	DB    *db.DB
	Store *store.Store

	// Primary is nil unless NeedsPrimary is set.
	Primary *primary.Client

	// Actor is the acting recruiter's email (empty unless NeedsActor is set).
	Actor string

	restoreLog func()
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	if a.restoreLog != nil {
		a.restoreLog()
		a.restoreLog = nil
	}
}

// Users returns the user-level fetcher.
func (a *App) Users() *fetcher.Fetcher[domain.Candidate] {
	return fetcher.Users(a.Primary, a.Log)
}

// Applications returns the application-level fetcher.
func (a *App) Applications() *fetcher.Fetcher[domain.Application] {
	return fetcher.Applications(a.Primary, a.Log)
}

// Resolver returns the overlay resolver over the store.
func (a *App) Resolver() *reconcile.Resolver {
	return reconcile.NewResolver(a.Store.Profiles, a.Store.Annotations, a.Store.Assignments, a.Metrics)
}

// Pipeline returns the fetch-and-merge pipeline. It needs both the primary
// client and the store.
func (a *App) Pipeline() *reconcile.Pipeline {
	return &reconcile.Pipeline{
		Users:        a.Users(),
		Applications: a.Applications(),
		Resolver:     a.Resolver(),
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB opens and migration-checks the overlay database.
	NeedsDB bool

	// NeedsPrimary builds the primary API client.
	NeedsPrimary bool

	// NeedsActor requires an acting recruiter email.
	NeedsActor bool
}

// DefaultOptions returns options for read commands (overlay and primary).
func DefaultOptions() Options {
	return Options{NeedsDB: true, NeedsPrimary: true}
}

// WithActor returns options for mutating commands.
func WithActor() Options {
	return Options{NeedsDB: true, NeedsPrimary: true, NeedsActor: true}
}

// PrimaryOnly returns options for commands that only call the primary API.
func PrimaryOnly() Options {
	return Options{NeedsPrimary: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	ApplyFlags(cmd, cfg)

	logger, restore, err := logging.Install(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Log: logger, restoreLog: restore}

	if opts.NeedsDB {
		database, err := db.Open(cfg.OverlayDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open overlay database: %w", err)
		}
		if err := database.RequiresMigrationError(); err != nil {
			database.Close()
			app.Close()
			return nil, fmt.Errorf("%w. Run 'crmqadm migrate' to update", err)
		}
		app.DB = database
		app.Store = store.New(database)
	}

	if opts.NeedsPrimary {
		client, err := primary.New(cfg.APIURL,
			primary.WithTimeout(cfg.RequestTimeout),
			primary.WithLogger(logger),
			primary.WithMetrics(app.Metrics),
		)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Primary = client
	}

	if opts.NeedsActor {
		app.Actor = cfg.Actor(flagString(cmd, "as"))
		if app.Actor == "" {
			app.Close()
			return nil, domain.ErrNoIdentity
		}
	} else {
		app.Actor = cfg.Actor(flagString(cmd, "as"))
	}

	return app, nil
}

// ApplyFlags copies the global flag overrides onto cfg.
func ApplyFlags(cmd *cobra.Command, cfg *config.Config) {
	if v := flagString(cmd, "db"); v != "" {
		cfg.OverlayDSN = v
	}
	if v := flagString(cmd, "api"); v != "" {
		cfg.APIURL = v
	}
	if v := flagString(cmd, "log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := flagString(cmd, "output"); v != "" {
		cfg.Output = v
	}
}

func flagString(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return strings.TrimSpace(f.Value.String())
	}
	return ""
}
