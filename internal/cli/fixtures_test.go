package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/config"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/metrics"
	"github.com/lherron/crmq/internal/primary"
	"github.com/lherron/crmq/internal/testutil"
)

const testActor = "me@example.com"

var fakeUsers = []map[string]any{
	{
		"_id":           "u-1",
		"phoneNumber":   "+971500000001",
		"fullName":      "Asha Rao",
		"hasApplied":    true,
		"targetCountry": "UAE",
		"targetJobRole": "Welder",
		"crmData":       map[string]any{},
	},
	{
		"_id":           "u-2",
		"phoneNumber":   "+971500000002",
		"fullName":      "Ben Ode",
		"targetCountry": map[string]any{"_id": "c2", "name": "Qatar"},
		"targetJobRole": "Driver",
		"crmData":       map[string]any{"assignee": "other@example.com"},
	},
	{
		"_id":         "u-3",
		"phoneNumber": "+971500000003",
		"crmData":     map[string]any{},
	},
}

var fakeApplications = []map[string]any{
	{
		"_id":           "a-1",
		"userId":        "u-1",
		"fullName":      "Asha Rao",
		"phoneNumber":   "+971500000001",
		"jobTitle":      "Welder II",
		"companyName":   "Gulf Co",
		"targetCountry": "UAE",
		"targetJobRole": "Welder",
		"crmData":       map[string]any{},
	},
}

// fakePrimary serves the subset of the primary API the commands use and
// records crm-update calls.
type fakePrimary struct {
	srv *httptest.Server

	mu       sync.Mutex
	updates  []domain.CRMUpdate
	apps     []map[string]any
	appPages int
}

func newFakePrimary(t *testing.T) *fakePrimary {
	t.Helper()
	fp := &fakePrimary{apps: fakeApplications}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/crm/user-level", func(w http.ResponseWriter, r *http.Request) {
		writePage(w, r, fakeUsers)
	})
	mux.HandleFunc("GET /api/crm/application-level", func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		fp.appPages++
		apps := fp.apps
		fp.mu.Unlock()
		writePage(w, r, searchApplications(apps, r.URL.Query().Get("userInfo")))
	})
	mux.HandleFunc("POST /api/crm/crm-update", func(w http.ResponseWriter, r *http.Request) {
		var u domain.CRMUpdate
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fp.mu.Lock()
		fp.updates = append(fp.updates, u)
		fp.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	mux.HandleFunc("GET /api/crm/countries", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"_id":"c1","name":"UAE"},{"_id":"c2","name":"Qatar"}]`)
	})
	mux.HandleFunc("GET /api/crm/job-roles", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"_id":"r1","name":"Welder"}]}`)
	})
	mux.HandleFunc("GET /api/crm/user-history/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"field":"assignee","from":"","to":"other@example.com"}]}`)
	})
	mux.HandleFunc("GET /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, u := range fakeUsers {
			if u["_id"] == r.PathValue("id") {
				_ = json.NewEncoder(w).Encode(map[string]any{"data": u})
				return
			}
		}
		http.Error(w, `{"message":"user not found"}`, http.StatusNotFound)
	})

	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func writePage(w http.ResponseWriter, r *http.Request, all []map[string]any) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = len(all)
	}
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	_ = json.NewEncoder(w).Encode(map[string]any{"data": all[start:end], "total": len(all)})
}

// searchApplications mimics the server-side userInfo search of the
// application-level endpoint: a case-insensitive substring over id, name
// and phone.
func searchApplications(all []map[string]any, term string) []map[string]any {
	if term == "" {
		return all
	}
	term = strings.ToLower(term)
	var out []map[string]any
	for _, a := range all {
		for _, k := range []string{"_id", "fullName", "phoneNumber"} {
			if s, ok := a[k].(string); ok && strings.Contains(strings.ToLower(s), term) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// SetApplications replaces the application-level dataset.
func (fp *fakePrimary) SetApplications(apps []map[string]any) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.apps = apps
}

// ApplicationPages reports how many application-level pages were served.
func (fp *fakePrimary) ApplicationPages() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.appPages
}

func (fp *fakePrimary) Updates() []domain.CRMUpdate {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]domain.CRMUpdate(nil), fp.updates...)
}

// newTestApp wires an App against a fake primary API and a migrated
// temporary overlay.
func newTestApp(t *testing.T) (*appctx.App, *fakePrimary) {
	t.Helper()
	fp := newFakePrimary(t)
	st := testutil.TempStore(t)

	cfg := config.Defaults()
	cfg.APIURL = fp.srv.URL + "/api"
	cfg.OverlayDSN = "sqlite://overlay.db"
	cfg.ActorEmail = testActor
	cfg.Output = "table"
	cfg.ExportDir = t.TempDir()

	client, err := primary.New(cfg.APIURL)
	if err != nil {
		t.Fatalf("primary.New: %v", err)
	}
	return &appctx.App{
		Config:  cfg,
		Log:     zap.NewNop(),
		Metrics: metrics.New(),
		DB:      st.DB(),
		Store:   st,
		Primary: client,
		Actor:   testActor,
	}, fp
}

// testCmd returns a command whose stdout and stderr are captured.
func testCmd() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(&bytes.Buffer{})
	return cmd, &stdout, &stderr
}

// assignTo stores an overlay assignment directly.
func assignTo(t *testing.T, app *appctx.App, userID, who string) {
	t.Helper()
	if err := app.Store.UpsertAssignment(t.Context(), who, userID, who); err != nil {
		t.Fatalf("UpsertAssignment: %v", err)
	}
}
