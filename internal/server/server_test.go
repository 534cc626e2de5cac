package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/a11y-auditor/internal/browser/browsertest"
	"github.com/jonathan/a11y-auditor/internal/config"
	"github.com/jonathan/a11y-auditor/internal/db"
	"github.com/jonathan/a11y-auditor/internal/interpreter"
	"github.com/jonathan/a11y-auditor/internal/runner"
	"github.com/jonathan/a11y-auditor/internal/server/ratelimit"
	"github.com/jonathan/a11y-auditor/internal/tools"
	"github.com/jonathan/a11y-auditor/internal/types"
)

const pageHTML = `<!DOCTYPE html><html lang="en"><head><title>Home</title></head>
<body><h1>Home</h1><hr><p>Welcome</p></body></html>`

const auditJob = `{
	"id": "api-1",
	"what": "audit the home page",
	"strict": false,
	"standard": "also",
	"observe": false,
	"device": {"id": "default"},
	"browserID": "chromium",
	"timeLimit": 60,
	"creationTimeStamp": "250101T1200",
	"executionTimeStamp": "2025-01-01T12:00:00Z",
	"sendReportTo": "",
	"target": {"url": "https://example.com/", "what": "Home"},
	"acts": [
		{"type": "launch"},
		{"type": "url", "which": "https://example.com/"},
		{"type": "test", "which": "testaro", "rules": ["hr"]}
	]
}`

// memReports is an in-memory ReportStore.
type memReports struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*types.Report
	order   []uuid.UUID
}

func newMemReports() *memReports {
	return &memReports{reports: make(map[uuid.UUID]*types.Report)}
}

func (m *memReports) SaveReport(_ context.Context, report *types.Report) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.reports[id] = report
	m.order = append(m.order, id)
	return id, nil
}

func (m *memReports) GetReport(_ context.Context, id uuid.UUID) (*types.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports[id], nil
}

func (m *memReports) ListReports(_ context.Context, jobID string, limit int) ([]db.ReportSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.ReportSummary
	for i := len(m.order) - 1; i >= 0; i-- {
		id := m.order[i]
		report, ok := m.reports[id]
		if !ok || jobID != "" && report.Job.ID != jobID {
			continue
		}
		summary := db.Summarize(report)
		summary.ID = id
		out = append(out, summary)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memReports) DeleteReport(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return false, nil
	}
	delete(m.reports, id)
	return true, nil
}

type testServer struct {
	*Server
	reports  *memReports
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	launcher := browsertest.NewLauncher(map[string]browsertest.Route{
		"https://example.com/": {HTML: pageHTML},
	})
	child := &runner.Child{Launcher: launcher, Tools: tools.NewRegistry(tools.NewTestaro(log)), Log: log}
	reg := prometheus.NewRegistry()

	deps := Deps{
		Engine: interpreter.Config{
			Launcher: launcher,
			Runner:   runner.NewInProcessRunner(child, log),
			Log:      log,
			Metrics:  interpreter.NewMetrics(reg),
			Headless: true,
		},
		Gatherer: reg,
		Log:      log,
	}
	ts := &testServer{reports: newMemReports(), registry: reg}
	deps.Reports = ts.reports
	if mutate != nil {
		mutate(&deps)
	}
	ts.Server = New(Config{Port: 0}, deps)
	t.Cleanup(ts.rateLimiter.Stop)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodOptions, "/jobs", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestJobEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(auditJob)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	assert.Equal(t, "api-1", resp.Report.Job.ID)
	assert.False(t, resp.Report.JobData.Aborted)
	assert.Equal(t, 3, resp.Report.JobData.ActCount)

	test, ok := resp.Report.Acts[2].(*types.TestAct)
	require.True(t, ok)
	require.NotNil(t, test.StandardResult)
	assert.Len(t, test.StandardResult.Instances, 1)

	id, err := uuid.Parse(resp.ReportID)
	require.NoError(t, err, "the report is stored")
	stored, err := ts.reports.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "api-1", stored.Job.ID)
}

func TestJobEndpoint_InvalidJob(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{ invalid`, "Invalid request body"},
		{"missing acts", `{"id": "x"}`, "invalid job"},
		{"unknown act", strings.Replace(auditJob, `"type": "launch"`, `"type": "teleport"`, 1), "invalid job"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp["error"], tt.want)
		})
	}
	assert.Empty(t, ts.reports.order, "invalid jobs are not run")
}

func TestJobEndpoint_WithoutStorage(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) { d.Reports = nil })

	w := ts.do(httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(auditJob)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.ReportID)
	assert.NotNil(t, resp.Report)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJobEndpoint_DeliveryFailure(t *testing.T) {
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer dest.Close()
	ts := newTestServer(t, nil)
	job := strings.Replace(auditJob, `"sendReportTo": ""`, fmt.Sprintf(`"sendReportTo": %q`, dest.URL), 1)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(job)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Report, "the report is returned even when delivery fails")
	assert.Contains(t, resp.DeliveryError, "failed to deliver report")
	assert.Empty(t, ts.reports.order, "sendReportTo replaces the default store")
}

// readEvents parses an SSE stream into event names and raw payloads.
func readEvents(t *testing.T, body string) (names []string, payloads []string) {
	t.Helper()
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			names = append(names, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, len(names), len(payloads))
	return names, payloads
}

func TestJobStreamEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/jobs/stream", strings.NewReader(auditJob)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	names, payloads := readEvents(t, w.Body.String())
	assert.Equal(t, []string{"act", "act", "act", "report"}, names)

	var first interpreter.ActEvent
	require.NoError(t, json.Unmarshal([]byte(payloads[0]), &first))
	assert.Equal(t, types.ActLaunch, first.Type)
	assert.Equal(t, "api-1", first.JobID)

	var final JobResponse
	require.NoError(t, json.Unmarshal([]byte(payloads[3]), &final))
	assert.NotEmpty(t, final.ReportID)
	assert.Equal(t, 3, final.Report.JobData.ActCount)
}

func TestJobStreamEndpoint_InvalidJob(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/jobs/stream", strings.NewReader(`{"id": "x"}`)))

	names, payloads := readEvents(t, w.Body.String())
	assert.Equal(t, []string{"error"}, names)
	assert.Contains(t, payloads[0], "invalid job")
}

func TestReportEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	for i := 0; i < 2; i++ {
		w := ts.do(httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(auditJob)))
		require.Equal(t, http.StatusOK, w.Code)
	}
	first := ts.reports.order[0]

	w := ts.do(httptest.NewRequest(http.MethodGet, "/reports/"+first.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var report types.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "api-1", report.Job.ID)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/reports?job=api-1&limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Reports []db.ReportSummary `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, ts.reports.order[1], list.Reports[0].ID, "newest first")
	assert.Equal(t, 1, list.Reports[0].Instances)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/reports?job=other", nil))
	assert.JSONEq(t, `{"reports": []}`, w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodGet, "/reports?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodDelete, "/reports/"+first.String(), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(httptest.NewRequest(http.MethodDelete, "/reports/"+first.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(httptest.NewRequest(http.MethodGet, "/reports/"+first.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/reports/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(auditJob)))

	w := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `auditor_jobs_total{outcome="completed"} 1`)
	assert.Contains(t, w.Body.String(), "auditor_acts_total")
}

func TestAuthRequired(t *testing.T) {
	jwtService := NewJWTService(&config.JWTConfig{Secret: testSecret, ExpirationHours: 1})
	ts := newTestServer(t, func(d *Deps) { d.JWT = jwtService })

	w := ts.do(httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(auditJob)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := jwtService.GenerateToken("ci")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(auditJob))
	req.Header.Set("Authorization", "Bearer "+token)
	w = ts.do(req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "probes need no token")
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.RateLimit = &ratelimit.Config{
			Enabled: true,
			Default: ratelimit.Tier{Name: "default", Limit: 2, Window: time.Hour, Burst: 2},
			Tiers:   ratelimit.DefaultTiers(60),
		}
	})

	for i := 0; i < 2; i++ {
		w := ts.do(httptest.NewRequest(http.MethodGet, "/reports", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ts.do(httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_exceeded", resp["error"])

	w = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "probes are not limited")
}

func TestRun_Shutdown(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
