// Package primary is the HTTP client for the primary CRM API, the document
// store of record for candidates and applications.
package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/logging"
	"github.com/lherron/crmq/internal/metrics"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NotFound reports whether the server answered 404.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// Query selects a page of a list endpoint.
type Query struct {
	Page    int
	Limit   int
	Filters domain.Filters
}

// Values encodes the query string. Empty filters are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	f := q.Filters
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("userInfo", f.UserInfo)
	set("applied", f.Applied)
	set("country", f.Country)
	set("jobRole", f.JobRole)
	set("disposition", f.Disposition)
	set("assignee", f.Assignee)
	set("missingDetails", string(f.MissingDetails))
	set("startDate", f.StartDate)
	set("endDate", f.EndDate)
	return v
}

// HistoryEntry is one change record from a history endpoint. The primary
// API does not publish a schema for these, so entries are kept as decoded
// JSON objects.
type HistoryEntry map[string]any

// Client talks to the primary API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for baseURL, e.g. https://host/api. Paths such as
// /crm/user-level are resolved relative to it.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: must be an absolute http(s) url", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("github.com/lherron/crmq/internal/primary"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UserLevel fetches one page of candidates.
func (c *Client) UserLevel(ctx context.Context, q Query) (Page[domain.Candidate], error) {
	var page Page[domain.Candidate]
	err := c.do(ctx, http.MethodGet, "/crm/user-level", q.Values(), nil, &page)
	c.metrics.PageRequest(string(domain.DatasetUsers), err)
	return page, err
}

// ApplicationLevel fetches one page of applications.
func (c *Client) ApplicationLevel(ctx context.Context, q Query) (Page[domain.Application], error) {
	var page Page[domain.Application]
	err := c.do(ctx, http.MethodGet, "/crm/application-level", q.Values(), nil, &page)
	c.metrics.PageRequest(string(domain.DatasetApplications), err)
	return page, err
}

// UpdateCRM mirrors a CRM change back to the primary store.
func (c *Client) UpdateCRM(ctx context.Context, update domain.CRMUpdate) error {
	if update.UserID == "" {
		return fmt.Errorf("crm update: user id is required")
	}
	return c.do(ctx, http.MethodPost, "/crm/crm-update", nil, update, nil)
}

// UserHistory fetches the change history of a candidate.
func (c *Client) UserHistory(ctx context.Context, userID string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := c.getList(ctx, "/crm/user-history/"+url.PathEscape(userID), &out)
	return out, err
}

// ApplicationHistory fetches the change history of an application.
func (c *Client) ApplicationHistory(ctx context.Context, applicationID string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := c.getList(ctx, "/crm/application-history/"+url.PathEscape(applicationID), &out)
	return out, err
}

// Countries lists the target countries known to the primary store.
func (c *Client) Countries(ctx context.Context) ([]domain.NamedRef, error) {
	var out []domain.NamedRef
	err := c.getList(ctx, "/crm/countries", &out)
	return out, err
}

// JobRoles lists the target job roles known to the primary store.
func (c *Client) JobRoles(ctx context.Context) ([]domain.NamedRef, error) {
	var out []domain.NamedRef
	err := c.getList(ctx, "/crm/job-roles", &out)
	return out, err
}

// UserDetails fetches a single candidate document.
func (c *Client) UserDetails(ctx context.Context, userID string) (domain.Candidate, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, nil, &raw); err != nil {
		return domain.Candidate{}, err
	}
	body := unwrapData(raw)
	var cand domain.Candidate
	if err := json.Unmarshal(body, &cand); err != nil {
		return domain.Candidate{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	if cand.ID == "" {
		return domain.Candidate{}, &domain.NotFoundError{Resource: "candidate", ID: userID}
	}
	return cand, nil
}

// getList decodes either a bare array or a {data: [...]} envelope.
func (c *Client) getList(ctx context.Context, path string, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return err
	}
	body := unwrapData(raw)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func unwrapData(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return raw
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		return env.Data
	}
	return raw
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "primary "+method+" "+endpointName(path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("crmq.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveRequest(endpointName(path), time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("primary request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	c.logger.Debug("primary request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("query", u.RawQuery),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// endpointName strips path parameters so metric labels stay bounded.
func endpointName(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	if len(parts) == 2 && parts[0] == "users" {
		parts = parts[:1]
	}
	return strings.Join(parts, "/")
}
