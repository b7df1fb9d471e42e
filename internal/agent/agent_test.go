package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephwaligorski/milklabel/internal/config"
	"github.com/josephwaligorski/milklabel/internal/core"
	milkdb "github.com/josephwaligorski/milklabel/internal/db"
)

// fakeCentral records the agent's calls and serves a scripted job.
type fakeCentral struct {
	mu         sync.Mutex
	heartbeats []heartbeatRequest
	polls      []nextJobRequest
	completes  map[string]completeRequest
	job        *milkdb.PrintJob
}

func (f *fakeCentral) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agents/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		var req heartbeatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.heartbeats = append(f.heartbeats, req)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/agents/next-job", func(w http.ResponseWriter, r *http.Request) {
		var req nextJobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.polls = append(f.polls, req)
		job := f.job
		f.job = nil
		f.mu.Unlock()
		json.NewEncoder(w).Encode(nextJobResponse{Job: job})
	})
	mux.HandleFunc("/api/print/", func(w http.ResponseWriter, r *http.Request) {
		var req completeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.completes[r.URL.Path] = req
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func testJob(t *testing.T) *milkdb.PrintJob {
	t.Helper()
	snap := core.SessionSnapshot{
		ID:          "sess-1",
		Timestamp:   time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC),
		AmountOz:    4.5,
		Notes:       "left side",
		UseByFridge: time.Date(2024, 3, 14, 14, 30, 0, 0, time.UTC),
		UseByFrozen: time.Date(2024, 9, 6, 14, 30, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	return &milkdb.PrintJob{
		ID:      "job-1",
		Status:  "claimed",
		Session: raw,
	}
}

func newTestAgent(t *testing.T, central *fakeCentral) (*Agent, string) {
	t.Helper()
	srv := httptest.NewServer(central.handler(t))
	t.Cleanup(srv.Close)

	device := filepath.Join(t.TempDir(), "lp0")
	require.NoError(t, os.WriteFile(device, nil, 0o644))

	a := New(config.AgentConfig{
		CentralURL: srv.URL,
		PrinterID:  "pi-1",
		Interval:   time.Hour,
		DevicePath: device,
	}, nil)
	return a, device
}

func TestRunOnceIdleCycle(t *testing.T) {
	central := &fakeCentral{completes: map[string]completeRequest{}}
	a, _ := newTestAgent(t, central)

	a.RunOnce(context.Background())

	require.Len(t, central.heartbeats, 1)
	assert.Equal(t, "pi-1", central.heartbeats[0].PrinterID)
	assert.Equal(t, Version, central.heartbeats[0].AgentVersion)
	assert.True(t, central.heartbeats[0].Capabilities["tspl"])

	require.Len(t, central.polls, 1)
	require.NotNil(t, central.polls[0].PrinterID)
	assert.Equal(t, "pi-1", *central.polls[0].PrinterID)

	assert.Empty(t, central.completes)
}

func TestRunOncePrintsAndReportsSuccess(t *testing.T) {
	central := &fakeCentral{completes: map[string]completeRequest{}}
	central.job = testJob(t)
	a, device := newTestAgent(t, central)

	a.RunOnce(context.Background())

	written, err := os.ReadFile(device)
	require.NoError(t, err)
	program := string(written)
	assert.Contains(t, program, "SIZE 2.625,1")
	assert.Contains(t, program, "4.5 oz (133 ml)")
	assert.Contains(t, program, "FORMFEED")

	report, ok := central.completes["/api/print/job-1/complete"]
	require.True(t, ok, "agent must report the outcome")
	assert.True(t, report.Success)
	assert.Empty(t, report.Error)
}

func TestRunOnceReportsPrintFailure(t *testing.T) {
	central := &fakeCentral{completes: map[string]completeRequest{}}
	central.job = testJob(t)

	srv := httptest.NewServer(central.handler(t))
	t.Cleanup(srv.Close)

	a := New(config.AgentConfig{
		CentralURL: srv.URL,
		PrinterID:  "pi-1",
		Interval:   time.Hour,
		DevicePath: filepath.Join(t.TempDir(), "missing-device"),
	}, nil)

	a.RunOnce(context.Background())

	report, ok := central.completes["/api/print/job-1/complete"]
	require.True(t, ok)
	assert.False(t, report.Success)
	assert.Contains(t, report.Error, "raw transport failed")
}

func TestRunOnceSurvivesUnreachableServer(t *testing.T) {
	a := New(config.AgentConfig{
		CentralURL: "http://127.0.0.1:1",
		PrinterID:  "pi-1",
		Interval:   time.Hour,
		DevicePath: filepath.Join(t.TempDir(), "lp0"),
	}, nil)

	// Must not panic or block; errors are logged and swallowed.
	a.RunOnce(context.Background())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	central := &fakeCentral{completes: map[string]completeRequest{}}
	a, _ := newTestAgent(t, central)
	a.cfg.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop after cancellation")
	}

	central.mu.Lock()
	defer central.mu.Unlock()
	assert.NotEmpty(t, central.heartbeats)
}
