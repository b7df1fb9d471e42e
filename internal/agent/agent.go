package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/josephwaligorski/milklabel/internal/config"
	"github.com/josephwaligorski/milklabel/internal/core"
	milkdb "github.com/josephwaligorski/milklabel/internal/db"
)

// Version is reported in every heartbeat. Overridden at build time via
// -ldflags.
var Version = "dev"

type heartbeatRequest struct {
	PrinterID    string          `json:"printerId"`
	AgentVersion string          `json:"agentVersion,omitempty"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

type nextJobRequest struct {
	PrinterID *string `json:"printerId"`
}

type nextJobResponse struct {
	Job *milkdb.PrintJob `json:"job"`
}

type completeRequest struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Agent is the polling process colocated with a physical printer. Each
// cycle heartbeats, claims at most one job, prints it through the raw
// device, and reports the outcome. Cycles are strictly sequential.
type Agent struct {
	cfg    config.AgentConfig
	client *http.Client
	device core.RawSender
	log    *zap.Logger
}

func New(cfg config.AgentConfig, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		device: &core.RawDeviceTransport{DevicePath: cfg.DevicePath},
		log:    log,
	}
}

// Run loops until the context is cancelled. Errors inside a cycle are
// logged and swallowed; the agent is a long-running background process and
// must survive a flaky network or an unplugged printer.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.log.Info("agent starting",
		zap.String("printer_id", a.cfg.PrinterID),
		zap.String("central_url", a.cfg.CentralURL),
		zap.Duration("interval", a.cfg.Interval))

	for {
		a.RunOnce(ctx)

		select {
		case <-ctx.Done():
			a.log.Info("agent stopping")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single heartbeat-claim-print-report cycle. Exported
// so tests can drive iterations without the ticker.
func (a *Agent) RunOnce(ctx context.Context) {
	if err := a.heartbeat(ctx); err != nil {
		a.log.Warn("heartbeat failed", zap.Error(err))
	}

	job, err := a.nextJob(ctx)
	if err != nil {
		a.log.Warn("job poll failed", zap.Error(err))
		return
	}
	if job == nil {
		return
	}

	a.log.Info("claimed print job", zap.String("job_id", job.ID))

	printErr := a.print(job)
	if printErr != nil {
		a.log.Error("print failed", zap.String("job_id", job.ID), zap.Error(printErr))
	}

	if err := a.complete(ctx, job.ID, printErr); err != nil {
		a.log.Warn("completion report failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (a *Agent) print(job *milkdb.PrintJob) error {
	snap, err := core.Snapshot(job)
	if err != nil {
		return err
	}
	return a.device.Send([]byte(core.RenderTSPL(snap)))
}

func (a *Agent) heartbeat(ctx context.Context) error {
	req := heartbeatRequest{
		PrinterID:    a.cfg.PrinterID,
		AgentVersion: Version,
		Capabilities: map[string]bool{"tspl": true},
	}
	return a.post(ctx, "/api/agents/heartbeat", req, nil)
}

func (a *Agent) nextJob(ctx context.Context) (*milkdb.PrintJob, error) {
	req := nextJobRequest{}
	if a.cfg.PrinterID != "" {
		req.PrinterID = &a.cfg.PrinterID
	}

	var resp nextJobResponse
	if err := a.post(ctx, "/api/agents/next-job", req, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

func (a *Agent) complete(ctx context.Context, jobID string, printErr error) error {
	req := completeRequest{Success: printErr == nil}
	if printErr != nil {
		req.Error = printErr.Error()
	}
	return a.post(ctx, "/api/print/"+jobID+"/complete", req, nil)
}

func (a *Agent) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.CentralURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}
