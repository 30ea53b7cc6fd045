package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lherron/crmq/internal/bulk"
	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/config"
	"github.com/lherron/crmq/internal/cursor"
	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/events"
	"github.com/lherron/crmq/internal/export"
	"github.com/lherron/crmq/internal/logging"
	"github.com/lherron/crmq/internal/metrics"
	"github.com/lherron/crmq/internal/notify"
	"github.com/lherron/crmq/internal/primary"
	"github.com/lherron/crmq/internal/store"
)

// ActorHeader names the acting recruiter on daemon requests.
const ActorHeader = "X-Crmq-Actor"

// DaemonOptions configures the crmqd daemon.
type DaemonOptions struct {
	Addr  string
	Token string
	DSN   string
}

// ServeDaemon runs the crmqd HTTP API until ctx is cancelled.
func ServeDaemon(ctx context.Context, opts DaemonOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.DSN != "" {
		cfg.OverlayDSN = opts.DSN
	}
	if opts.Addr != "" {
		cfg.ListenAddr = opts.Addr
	}

	logger, restore, err := logging.Install(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer restore()

	database, err := db.Open(cfg.OverlayDSN)
	if err != nil {
		return fmt.Errorf("failed to open overlay database: %w", err)
	}
	defer database.Close()
	if err := database.RequiresMigrationError(); err != nil {
		return fmt.Errorf("%w. Run 'crmqadm migrate' to update", err)
	}

	m := metrics.New()
	client, err := primary.New(cfg.APIURL,
		primary.WithTimeout(cfg.RequestTimeout),
		primary.WithLogger(logger),
		primary.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	var sink export.Sink = export.DirSink{Dir: cfg.ExportDir}
	if cfg.ExportS3Bucket != "" {
		if sink, err = export.NewS3Sink(ctx, s3Config(cfg)); err != nil {
			return err
		}
	}

	app := &appctx.App{
		Config:  cfg,
		Log:     logger,
		Metrics: m,
		DB:      database,
		Store:   store.New(database),
		Primary: client,
		Actor:   cfg.ActorEmail,
	}
	server := newDaemonServer(app, sink, opts.Token)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("crmqd listening", zap.String("addr", cfg.ListenAddr), zap.String("api", cfg.APIURL))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type daemonServer struct {
	app      *appctx.App
	exporter *export.Exporter
	notifier notify.Notifier
	token    string
}

func newDaemonServer(app *appctx.App, sink export.Sink, token string) *daemonServer {
	return &daemonServer{
		app:      app,
		exporter: export.New(app.Users(), app.Applications(), sink, app.Log, app.Metrics),
		notifier: notify.Multi{
			notify.NewLogger(app.Log),
			notify.NewWebhooks(app.Config.WebhookURLs, app.Log),
		},
		token: token,
	}
}

func (s *daemonServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.withAuth(s.handleHealth))

	mux.HandleFunc("GET /v1/records", s.withAuth(s.handleRecords))
	mux.HandleFunc("GET /v1/users/{id}", s.withAuth(s.handleUser))
	mux.HandleFunc("GET /v1/assignees", s.withAuth(s.handleAssignees))
	mux.HandleFunc("GET /v1/refs/{kind}", s.withAuth(s.handleRefs))
	mux.HandleFunc("GET /v1/events", s.withAuth(s.handleEvents))

	mux.HandleFunc("POST /v1/assign", s.withAuth(s.handleAssign))
	mux.HandleFunc("POST /v1/activity", s.withAuth(s.handleActivity))
	mux.HandleFunc("POST /v1/profile", s.withAuth(s.handleProfile))
	mux.HandleFunc("POST /v1/export", s.withAuth(s.handleExport))

	mux.Handle("GET /metrics", s.app.Metrics.Handler())
	return s.withRequestID(mux)
}

func (s *daemonServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			token := r.Header.Get("Authorization")
			if strings.HasPrefix(token, "Bearer ") {
				token = strings.TrimPrefix(token, "Bearer ")
			}
			if token == "" {
				token = r.Header.Get("X-Crmqd-Token")
			}
			if token != s.token {
				s.writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
				return
			}
		}

		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestID tags every request with an X-Request-ID and logs it.
func (s *daemonServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.app.Log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *daemonServer) decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *daemonServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *daemonServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// fail writes err with the status matching its kind.
func (s *daemonServer) fail(w http.ResponseWriter, err error) {
	s.writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	var (
		conflict *domain.AssignmentConflictError
		notFound *domain.NotFoundError
		upstream *primary.StatusError
	)
	switch {
	case errors.Is(err, domain.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.As(err, &conflict), errors.Is(err, domain.ErrNotAssignedToSelf), errors.Is(err, domain.ErrExportInProgress):
		return http.StatusConflict
	case errors.As(err, &notFound), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownRecord):
		return http.StatusNotFound
	case errors.As(err, &upstream):
		if upstream.NotFound() {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// actor returns the acting recruiter of a request: the actor header, or
// the configured email.
func (s *daemonServer) actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(ActorHeader)); a != "" {
		return a
	}
	return s.app.Config.ActorEmail
}

func (s *daemonServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.app.DB.Ping(r.Context()); err != nil {
		status, code = "degraded: "+err.Error(), http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":    status,
		"version":   Version,
		"exporting": s.exporter.Running(),
	})
}

// queryFilters reads the view filters using the primary API's parameter
// names.
func queryFilters(r *http.Request) (domain.Filters, error) {
	q := r.URL.Query()
	f := domain.Filters{
		UserInfo:       strings.TrimSpace(q.Get("userInfo")),
		Applied:        q.Get("applied"),
		Country:        q.Get("country"),
		JobRole:        q.Get("jobRole"),
		Disposition:    q.Get("disposition"),
		Assignee:       q.Get("assignee"),
		MissingDetails: domain.MissingDetails(q.Get("missingDetails")),
		StartDate:      q.Get("startDate"),
		EndDate:        q.Get("endDate"),
	}
	return f, errors.Join(
		domain.ValidateMissingDetails(f.MissingDetails),
		domain.ValidateDisposition(f.Disposition),
		domain.ValidateDay(f.StartDate),
		domain.ValidateDay(f.EndDate),
	)
}

func queryDataset(r *http.Request) (domain.Dataset, error) {
	d := r.URL.Query().Get("dataset")
	if d == "" {
		return domain.DatasetUsers, nil
	}
	return parseDataset([]string{d})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func (s *daemonServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	dataset, err := queryDataset(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	filters, err := queryFilters(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	size, err := queryInt(r, "limit", s.app.Config.PageSize)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if tok := r.URL.Query().Get("cursor"); tok != "" {
		c, err := cursor.Decode(tok)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		dataset, filters, page, size = c.Dataset, c.Filters, c.Page, c.Size
	}
	if err := domain.ValidatePage(page, size); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := loadListing(r.Context(), s.app, s.actor(r), dataset, filters, page, size)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *daemonServer) handleUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	c, err := s.app.Primary.UserDetails(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	records, err := s.app.Pipeline().MergeUsers(r.Context(), []domain.Candidate{c})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records[0])
}

func (s *daemonServer) handleAssignees(w http.ResponseWriter, r *http.Request) {
	who, err := s.app.Store.ListAssignees(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if who == nil {
		who = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"assignees": who})
}

func (s *daemonServer) handleRefs(w http.ResponseWriter, r *http.Request) {
	var (
		refs []domain.NamedRef
		err  error
	)
	switch r.PathValue("kind") {
	case "countries":
		refs, err = s.app.Primary.Countries(r.Context())
	case "job-roles":
		refs, err = s.app.Primary.JobRoles(r.Context())
	case "dispositions":
		s.writeJSON(w, http.StatusOK, map[string]any{"data": domain.Dispositions})
		return
	default:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown reference list %q", r.PathValue("kind")))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	if refs == nil {
		refs = []domain.NamedRef{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data": refs})
}

func (s *daemonServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	q := events.ListQuery{
		UserID: r.URL.Query().Get("user_id"),
		Actor:  r.URL.Query().Get("actor"),
		Limit:  limit,
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if q.Since, err = parseSince(since, time.Now()); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	list, err := events.List(r.Context(), s.app.DB, q)
	if err != nil {
		s.fail(w, err)
		return
	}
	if list == nil {
		list = []domain.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

type assignRequest struct {
	Dataset domain.Dataset `json:"dataset"`
	IDs     []string       `json:"ids"`
}

type assignResponse struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (s *daemonServer) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("ids is required"))
		return
	}
	dataset, err := bodyDataset(req.Dataset)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	actor := s.actor(r)
	if actor == "" {
		s.fail(w, domain.ErrNoIdentity)
		return
	}

	v, err := recordView(r.Context(), s.app, actor, dataset, req.IDs, s.notifier)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer v.Close()

	op := &bulk.Operation{Jobs: 4, ContinueOnError: true}
	result := op.Execute(r.Context(), req.IDs, v.Assign)
	resp := assignResponse{Succeeded: result.Succeeded, Failed: result.Failed}
	for _, e := range result.Errors {
		if resp.Errors == nil {
			resp.Errors = make(map[string]string)
		}
		resp.Errors[e.Item] = e.Error.Error()
	}

	status := http.StatusOK
	if result.Succeeded == 0 && len(result.Errors) > 0 {
		status = statusFor(result.Errors[0].Error)
	}
	s.writeJSON(w, status, resp)
}

type activityRequest struct {
	Dataset  domain.Dataset  `json:"dataset"`
	ID       string          `json:"id"`
	Activity domain.Activity `json:"activity"`
}

func (s *daemonServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	dataset, err := bodyDataset(req.Dataset)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("id is required"))
		return
	}
	if err := req.Activity.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	actor := s.actor(r)
	if actor == "" {
		s.fail(w, domain.ErrNoIdentity)
		return
	}

	v, err := recordView(r.Context(), s.app, actor, dataset, []string{req.ID}, s.notifier)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer v.Close()

	if err := v.RecordActivity(r.Context(), req.ID, req.Activity); err != nil {
		s.fail(w, err)
		return
	}
	rec, _ := v.Record(req.ID)
	s.writeJSON(w, http.StatusOK, rec)
}

type profileRequest struct {
	UserID string `json:"user_id"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

func (s *daemonServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" || req.Field == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("user_id and field are required"))
		return
	}
	v, err := recordView(r.Context(), s.app, s.actor(r), domain.DatasetUsers, []string{req.UserID}, s.notifier)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer v.Close()

	if err := v.UpdateField(r.Context(), req.UserID, req.Field, req.Value); err != nil {
		if errors.Is(err, domain.ErrUnknownRecord) {
			s.fail(w, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, _ := v.Record(req.UserID)
	s.writeJSON(w, http.StatusOK, rec)
}

type exportRequest struct {
	Dataset domain.Dataset `json:"dataset"`
	Filters domain.Filters `json:"filters"`
	Subset  domain.Subset  `json:"subset"`
	Format  export.Format  `json:"format"`
	Mine    bool           `json:"mine"`
}

func (s *daemonServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	dataset, err := bodyDataset(req.Dataset)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.exporter.Export(r.Context(), export.Request{
		Dataset: dataset,
		Filters: req.Filters,
		Subset:  req.Subset,
		Format:  req.Format,
		Mine:    req.Mine,
		Actor:   s.actor(r),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func bodyDataset(d domain.Dataset) (domain.Dataset, error) {
	if d == "" {
		return domain.DatasetUsers, nil
	}
	return parseDataset([]string{string(d)})
}
