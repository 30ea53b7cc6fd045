// Package export renders filtered datasets to CSV or xlsx and hands the
// result to a sink. Exports read the primary store only; overlay values are
// not merged in.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/filter"
	"github.com/lherron/crmq/internal/logging"
	"github.com/lherron/crmq/internal/metrics"
	"github.com/lherron/crmq/internal/reconcile"
)

// PageSize is the page size used while collecting export rows.
const PageSize = 100

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "", "csv" and "xlsx".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("invalid export format %q (want csv or xlsx)", s)
}

func (f Format) contentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Lister fetches every record matching the server-side filters.
// *fetcher.Fetcher implements it.
type Lister[T any] interface {
	FetchAll(ctx context.Context, filters domain.Filters, size int) ([]T, error)
}

// Request describes one export.
type Request struct {
	Dataset domain.Dataset
	Filters domain.Filters
	Subset  domain.Subset
	Format  Format
	// Mine restricts the export to records assigned to Actor.
	Mine  bool
	Actor string
}

// Result describes a finished export.
type Result struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
	Bytes    int    `json:"bytes"`
}

// Exporter runs exports. Only one export runs at a time per Exporter.
type Exporter struct {
	users   Lister[domain.Candidate]
	apps    Lister[domain.Application]
	sink    Sink
	log     *zap.Logger
	metrics *metrics.Metrics
	running atomic.Bool
}

// New creates an exporter.
func New(users Lister[domain.Candidate], apps Lister[domain.Application], sink Sink, logger *zap.Logger, m *metrics.Metrics) *Exporter {
	return &Exporter{users: users, apps: apps, sink: sink, log: logging.OrNop(logger), metrics: m}
}

// Running reports whether an export is in progress.
func (e *Exporter) Running() bool {
	return e.running.Load()
}

// Export collects, filters, renders and stores one dataset. A second call
// while one is running fails fast with domain.ErrExportInProgress.
func (e *Exporter) Export(ctx context.Context, req Request) (Result, error) {
	if err := domain.ValidateDataset(req.Dataset); err != nil {
		return Result{}, err
	}
	if req.Subset == "" {
		req.Subset = domain.SubsetAll
	}
	if err := domain.ValidateSubset(req.Subset); err != nil {
		return Result{}, err
	}
	if req.Format == "" {
		req.Format = FormatCSV
	}
	if req.Mine {
		req.Actor = strings.TrimSpace(req.Actor)
		if req.Actor == "" {
			return Result{}, domain.ErrNoIdentity
		}
		req.Filters.Assignee = req.Actor
	}

	if !e.running.CompareAndSwap(false, true) {
		return Result{}, domain.ErrExportInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	records, err := e.collect(ctx, req)
	if err != nil {
		return Result{}, err
	}

	cols := Columns(req.Dataset, req.Mine)
	var buf bytes.Buffer
	switch req.Format {
	case FormatXLSX:
		err = WriteXLSX(&buf, cols, records)
	case FormatCSV:
		err = WriteCSV(&buf, cols, records)
	default:
		err = fmt.Errorf("invalid export format %q", req.Format)
	}
	if err != nil {
		return Result{}, fmt.Errorf("render export: %w", err)
	}

	name := FileName(req.Dataset, req.Subset, req.Mine, req.Format)
	loc, err := e.sink.Put(ctx, name, req.Format.contentType(), buf.Bytes())
	if err != nil {
		return Result{}, fmt.Errorf("store export: %w", err)
	}
	e.metrics.ExportedRows(string(req.Dataset), len(records))
	e.log.Info("export written",
		zap.String("dataset", string(req.Dataset)),
		zap.String("subset", string(req.Subset)),
		zap.Int("rows", len(records)),
		zap.String("location", loc),
		zap.Duration("took", time.Since(start)),
	)
	return Result{Name: name, Location: loc, Rows: len(records), Bytes: buf.Len()}, nil
}

// collect fetches every page and applies the client-side filters. The
// user-level API does not honour the free-text filter, so it is stripped
// from the server query and applied locally. The application-level API
// does honour it, so it is not applied a second time.
func (e *Exporter) collect(ctx context.Context, req Request) ([]domain.MergedRecord, error) {
	server := req.Filters
	local := req.Filters
	var records []domain.MergedRecord

	switch req.Dataset {
	case domain.DatasetUsers:
		server.UserInfo = ""
		cands, err := e.users.FetchAll(ctx, server, PageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch user-level records: %w", err)
		}
		records = reconcile.PrimaryOnly(cands)
	default:
		local.UserInfo = ""
		apps, err := e.apps.FetchAll(ctx, server, PageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch application-level records: %w", err)
		}
		records = reconcile.PrimaryOnlyApplications(apps)
	}

	if req.Mine {
		records = filter.Keep(records, filter.Assignee(req.Actor))
	}
	return filter.Export(records, local, req.Subset), nil
}
