package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
	"github.com/JonMunkholm/fleximart-etl/internal/core"
	"github.com/JonMunkholm/fleximart-etl/internal/logging"
	"github.com/JonMunkholm/fleximart-etl/internal/store"
)

const testRunID = "6f1c2d1e-8d2b-4c3f-9a53-1f2e3d4c5b6a"

type fakeRuns struct {
	runs       []store.RunSummary
	rejections map[string][]core.Rejection
	err        error
	lastLimit  int
}

func (f *fakeRuns) ListRuns(_ context.Context, limit int) ([]store.RunSummary, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.runs[:min(limit, len(f.runs))], nil
}

func (f *fakeRuns) LatestRun(context.Context) (store.RunSummary, error) {
	if f.err != nil {
		return store.RunSummary{}, f.err
	}
	if len(f.runs) == 0 {
		return store.RunSummary{}, store.ErrNoRuns
	}
	return f.runs[0], nil
}

func (f *fakeRuns) Rejections(_ context.Context, runID string) ([]core.Rejection, error) {
	return f.rejections[runID], f.err
}

func sampleRun() store.RunSummary {
	return store.RunSummary{
		RunID:      testRunID,
		State:      "done",
		Report:     core.ReportTitle + "\n\nFile: customers_raw.csv\n- Records Processed: 6\n",
		StartedAt:  time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 1, 5, 10, 0, 3, 0, time.UTC),
		Counters: []core.QualityCounters{
			{Source: "customers", File: "customers_raw.csv", Processed: 6, DuplicatesRemoved: 1, Loaded: 4, DroppedMissing: 1},
		},
	}
}

func newTestServer(runs RunStore, run RunFunc) *Server {
	return NewServer(context.Background(), config.ServerConfig{Host: "127.0.0.1", Port: 0}, runs, run)
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakeRuns{}, nil), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","running":false}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{runs: []store.RunSummary{sampleRun()}}
	s := newTestServer(runs, nil)

	rec := do(t, s, http.MethodGet, "/api/runs?limit=500")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MaxRunsLimit, runs.lastLimit)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, testRunID, got[0]["run_id"])
	assert.NotContains(t, got[0], "Report")
}

func TestListRunsEmpty(t *testing.T) {
	rec := do(t, newTestServer(&fakeRuns{}, nil), http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListRunsBadLimit(t *testing.T) {
	for _, limit := range []string{"abc", "0", "-3"} {
		rec := do(t, newTestServer(&fakeRuns{}, nil), http.MethodGet, "/api/runs?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestLatestReport(t *testing.T) {
	s := newTestServer(&fakeRuns{runs: []store.RunSummary{sampleRun()}}, nil)

	rec := do(t, s, http.MethodGet, "/api/runs/latest/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "Data Quality Report (ETL Summary):")
	assert.Contains(t, rec.Body.String(), "- Records Processed: 6")
}

func TestLatestNoRuns(t *testing.T) {
	s := newTestServer(&fakeRuns{}, nil)

	for _, path := range []string{"/api/runs/latest", "/api/runs/latest/report"} {
		rec := do(t, s, http.MethodGet, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "not_found", body.Code)
	}
}

func TestStorageErrorIsSanitized(t *testing.T) {
	err := &core.Error{Kind: core.KindStorageUnavailable, Err: errors.New("dial tcp 10.0.0.5:5432: connection refused")}
	rec := do(t, newTestServer(&fakeRuns{err: err}, nil), http.MethodGet, "/api/runs/latest")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "storage_unavailable", body.Code)
	assert.NotContains(t, body.Error, "10.0.0.5")
}

func TestRejections(t *testing.T) {
	runs := &fakeRuns{rejections: map[string][]core.Rejection{
		testRunID: {{
			Source: "sales", Line: 7, Key: "T005/P999",
			Reason: core.ReasonUnresolvedReference, Kind: core.KindIntegrityViolation,
			Raw: map[string]string{"product_id": "P999"},
		}},
	}}
	s := newTestServer(runs, nil)

	rec := do(t, s, http.MethodGet, "/api/runs/"+testRunID+"/rejections")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"source":"sales","line":7,"natural_key":"T005/P999",
		"reason":"unresolved_reference","kind":"integrity_violation","raw":{"product_id":"P999"}}]`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/runs/not-a-uuid/rejections")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportPage(t *testing.T) {
	run := sampleRun()
	run.Error = "<script>alert(1)</script>"
	s := newTestServer(&fakeRuns{runs: []store.RunSummary{run}}, nil)

	rec := do(t, s, http.MethodGet, "/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, testRunID)
	assert.Contains(t, body, "<td>customers</td>")
	assert.Contains(t, body, "<td>6</td>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "<script>")

	rec = do(t, newTestServer(&fakeRuns{}, nil), http.MethodGet, "/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No pipeline runs recorded yet.")
}

// brokenWriter is a ResponseWriter whose client has gone away.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error)       { return 0, errors.New("broken pipe") }
func (brokenWriter) WriteString(string) (int, error) { return 0, errors.New("broken pipe") }

func TestReportWriteErrorsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&logs, "debug", "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := newTestServer(&fakeRuns{runs: []store.RunSummary{sampleRun()}}, nil)
	for _, path := range []string{"/api/runs/latest/report", "/runs/latest"} {
		s.Router().ServeHTTP(brokenWriter{httptest.NewRecorder()}, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Contains(t, logs.String(), "write report")
	assert.Contains(t, logs.String(), "render report page")
	assert.Contains(t, logs.String(), "broken pipe")
}

func TestTriggerRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	run := func(ctx context.Context) (*core.Report, error) {
		once.Do(func() { close(started) })
		<-release
		return &core.Report{RunID: testRunID, State: core.StageDone}, nil
	}
	s := newTestServer(&fakeRuns{}, run)

	rec := do(t, s, http.MethodPost, "/api/runs")
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-started
	assert.True(t, s.Running())

	rec = do(t, s, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.False(t, s.Running())
}

func TestTriggerRunDisabled(t *testing.T) {
	rec := do(t, newTestServer(&fakeRuns{}, nil), http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
