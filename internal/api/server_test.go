package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephwaligorski/milklabel/internal/config"
	"github.com/josephwaligorski/milklabel/internal/core"
	milkdb "github.com/josephwaligorski/milklabel/internal/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestEngine wires the API against a real sqlite store in central mode,
// so print requests land in the job queue instead of a physical transport.
func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()

	conn, err := milkdb.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := milkdb.NewStore(conn)
	queue := core.NewQueue(conn)

	cfg := config.PrintConfig{Mode: "tspl", CentralMode: true}
	dispatcher := core.NewDispatcher(cfg, store, queue,
		&core.RawDeviceTransport{DevicePath: "/dev/null"},
		&core.SubprocessTransport{Command: "true"},
		&core.TCPTransport{}, nil)

	return NewEngine(store, queue, dispatcher, nil)
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestHealthz(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSessionCRUD(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/sessions", gin.H{
		"amount_oz": 4.5,
		"notes":     "left side",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created milkdb.Session
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 4.5, created.AmountOz)
	assert.Equal(t, "left side", created.Notes)
	// Use-by dates are derived when the client omits them.
	assert.Equal(t, created.Timestamp.Add(4*24*time.Hour), created.UseByFridge)

	w = doJSON(t, engine, http.MethodGet, "/api/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Sessions []milkdb.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	w = doJSON(t, engine, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSessionRejectsZeroAmount(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/sessions", gin.H{"amount_oz": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrintRejectsRequestWithoutSession(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/print", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrintUnknownSessionID(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/print", gin.H{"sessionId": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobNotFound(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/api/print/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHeartbeatAndListAgents(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/agents/heartbeat", gin.H{
		"printerId":    "pi-1",
		"agentVersion": "1.2.0",
		"capabilities": gin.H{"tspl": true},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// A repeat heartbeat updates, not duplicates.
	w = doJSON(t, engine, http.MethodPost, "/api/agents/heartbeat", gin.H{
		"printerId":    "pi-1",
		"agentVersion": "1.2.1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Agents []milkdb.Agent `json:"agents"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Agents, 1)
	assert.Equal(t, "pi-1", resp.Agents[0].PrinterID)
	assert.Equal(t, "1.2.1", resp.Agents[0].AgentVersion)
}

func TestHeartbeatRequiresPrinterID(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/agents/heartbeat", gin.H{"agentVersion": "1.0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCentralPrintLifecycle(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/sessions", gin.H{"amount_oz": 3.25})
	require.Equal(t, http.StatusCreated, w.Code)
	var sess milkdb.Session
	decode(t, w, &sess)

	// Central mode routes through the queue.
	w = doJSON(t, engine, http.MethodPost, "/api/print", gin.H{"sessionId": sess.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var result core.DispatchResult
	decode(t, w, &result)
	assert.Equal(t, "queued", result.Status)
	assert.Equal(t, core.TransportQueue, result.Mode)
	require.NotEmpty(t, result.JobID)

	w = doJSON(t, engine, http.MethodGet, "/api/print/"+result.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var queued milkdb.PrintJob
	decode(t, w, &queued)
	assert.Equal(t, "queued", queued.Status)

	// An agent claims the job and gets the frozen snapshot with it.
	w = doJSON(t, engine, http.MethodPost, "/api/agents/next-job", gin.H{"printerId": "pi-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var claim struct {
		Job *milkdb.PrintJob `json:"job"`
	}
	decode(t, w, &claim)
	require.NotNil(t, claim.Job)
	assert.Equal(t, result.JobID, claim.Job.ID)
	assert.Equal(t, "claimed", claim.Job.Status)

	snap, err := core.Snapshot(claim.Job)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, snap.ID)
	assert.Equal(t, 3.25, snap.AmountOz)

	w = doJSON(t, engine, http.MethodPost, fmt.Sprintf("/api/print/%s/complete", claim.Job.ID), gin.H{"success": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/print/"+claim.Job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var done milkdb.PrintJob
	decode(t, w, &done)
	assert.Equal(t, "done", done.Status)
	require.NotNil(t, done.FinishedAt)

	// Nothing left for the next poll.
	w = doJSON(t, engine, http.MethodPost, "/api/agents/next-job", gin.H{"printerId": "pi-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var empty struct {
		Job *milkdb.PrintJob `json:"job"`
	}
	decode(t, w, &empty)
	assert.Nil(t, empty.Job)
}

func TestTargetedPrintGoesToQueueOutsideCentralMode(t *testing.T) {
	conn, err := milkdb.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := milkdb.NewStore(conn)
	queue := core.NewQueue(conn)
	cfg := config.PrintConfig{Mode: "tspl", DirectPrint: true}
	dispatcher := core.NewDispatcher(cfg, store, queue,
		&core.RawDeviceTransport{DevicePath: "/dev/null"},
		&core.SubprocessTransport{Command: "true"},
		&core.TCPTransport{}, nil)
	engine := NewEngine(store, queue, dispatcher, nil)

	w := doJSON(t, engine, http.MethodPost, "/api/sessions", gin.H{"amount_oz": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	var sess milkdb.Session
	decode(t, w, &sess)

	w = doJSON(t, engine, http.MethodPost, "/api/print", gin.H{
		"sessionId": sess.ID,
		"printerId": "pi-2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var result core.DispatchResult
	decode(t, w, &result)
	assert.Equal(t, core.TransportQueue, result.Mode)

	// Only the targeted agent can claim it.
	w = doJSON(t, engine, http.MethodPost, "/api/agents/next-job", gin.H{"printerId": "pi-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var other struct {
		Job *milkdb.PrintJob `json:"job"`
	}
	decode(t, w, &other)
	assert.Nil(t, other.Job)

	w = doJSON(t, engine, http.MethodPost, "/api/agents/next-job", gin.H{"printerId": "pi-2"})
	require.Equal(t, http.StatusOK, w.Code)
	var target struct {
		Job *milkdb.PrintJob `json:"job"`
	}
	decode(t, w, &target)
	require.NotNil(t, target.Job)
	assert.Equal(t, result.JobID, target.Job.ID)
}

func TestCompleteUnknownJobReturns404(t *testing.T) {
	engine := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/print/missing/complete", gin.H{"success": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
