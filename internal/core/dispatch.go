package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/josephwaligorski/milklabel/internal/config"
	milkdb "github.com/josephwaligorski/milklabel/internal/db"
)

// TransportKind tags which delivery path a print request resolves to.
type TransportKind string

const (
	TransportTCP            TransportKind = "tcp"
	TransportQueue          TransportKind = "queue"
	TransportRawTSPL        TransportKind = "tspl-direct"
	TransportSubprocessTSPL TransportKind = "tspl-lp"
	TransportPDF            TransportKind = "pdf"
)

var ErrNoSession = errors.New("request has no resolvable session")

// DirectTCP names an ad-hoc network printer supplied inline on a request.
type DirectTCP struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
}

// PrintRequest is the dispatcher's public entry point. Exactly one of
// SessionID or Session must resolve; everything else is optional.
type PrintRequest struct {
	SessionID string           `json:"sessionId,omitempty"`
	Session   *SessionSnapshot `json:"session,omitempty"`
	PrinterID *string          `json:"printerId,omitempty"`
	DirectTCP *DirectTCP       `json:"directTcpPrinter,omitempty"`
}

// DispatchResult reports which transport handled the request. JobID is set
// only for the queue path; FellBack marks the documented raw-to-spooler
// fallback in TSPL mode.
type DispatchResult struct {
	Status   string        `json:"status"`
	Mode     TransportKind `json:"mode"`
	JobID    string        `json:"jobId,omitempty"`
	FellBack bool          `json:"fellBack,omitempty"`
}

// ResolveTransport applies the dispatch precedence to a request and the
// process configuration. First match wins:
//
//  1. inline TCP printer
//  2. central mode, or a targeted printer id, routes through the job queue
//  3. TSPL mode writes raw when direct writes are enabled, else spools
//  4. everything else renders PDF for the spooler
//
// The function is pure so the precedence itself is testable in isolation.
func ResolveTransport(req *PrintRequest, cfg config.PrintConfig) TransportKind {
	if req.DirectTCP != nil && req.DirectTCP.Host != "" {
		return TransportTCP
	}
	if cfg.CentralMode || (req.PrinterID != nil && *req.PrinterID != "") {
		return TransportQueue
	}
	if cfg.Mode == "tspl" {
		if cfg.DirectPrint {
			return TransportRawTSPL
		}
		return TransportSubprocessTSPL
	}
	return TransportPDF
}

type SessionResolver interface {
	GetSession(ctx context.Context, id string) (*milkdb.Session, error)
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, snap SessionSnapshot, printerID *string) (*milkdb.PrintJob, error)
}

type RawSender interface {
	Send(program []byte) error
}

type SpoolSender interface {
	SendRaw(program []byte) error
	SendPDF(doc []byte) error
}

type SocketSender interface {
	Send(host string, port int, program []byte) error
}

// Dispatcher resolves a print request to exactly one transport attempt.
// The single exception is TSPL direct mode, where a failed raw write falls
// back to the spooler once.
type Dispatcher struct {
	cfg     config.PrintConfig
	store   SessionResolver
	queue   JobEnqueuer
	raw     RawSender
	spooler SpoolSender
	tcp     SocketSender
	log     *zap.Logger
}

func NewDispatcher(cfg config.PrintConfig, store SessionResolver, queue JobEnqueuer, raw RawSender, spooler SpoolSender, tcp SocketSender, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		raw:     raw,
		spooler: spooler,
		tcp:     tcp,
		log:     log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req *PrintRequest) (*DispatchResult, error) {
	snap, err := d.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	mode := ResolveTransport(req, d.cfg)
	d.log.Info("dispatching print request",
		zap.String("session_id", snap.ID),
		zap.String("mode", string(mode)))

	switch mode {
	case TransportTCP:
		program := RenderTSPL(snap)
		if err := d.tcp.Send(req.DirectTCP.Host, req.DirectTCP.Port, []byte(program)); err != nil {
			return nil, err
		}
		return &DispatchResult{Status: "printed", Mode: mode}, nil

	case TransportQueue:
		job, err := d.queue.Enqueue(ctx, snap, req.PrinterID)
		if err != nil {
			return nil, err
		}
		return &DispatchResult{Status: "queued", Mode: mode, JobID: job.ID}, nil

	case TransportRawTSPL:
		program := []byte(RenderTSPL(snap))
		if err := d.raw.Send(program); err != nil {
			d.log.Warn("raw device write failed, falling back to spooler",
				zap.String("session_id", snap.ID),
				zap.Error(err))
			if err := d.spooler.SendRaw(program); err != nil {
				return nil, err
			}
			return &DispatchResult{Status: "printed", Mode: TransportSubprocessTSPL, FellBack: true}, nil
		}
		return &DispatchResult{Status: "printed", Mode: mode}, nil

	case TransportSubprocessTSPL:
		if err := d.spooler.SendRaw([]byte(RenderTSPL(snap))); err != nil {
			return nil, err
		}
		return &DispatchResult{Status: "printed", Mode: mode}, nil

	default: // TransportPDF
		doc, err := RenderPDF(snap)
		if err != nil {
			return nil, err
		}
		if err := d.spooler.SendPDF(doc); err != nil {
			return nil, err
		}
		return &DispatchResult{Status: "printed", Mode: TransportPDF}, nil
	}
}

// resolveSession prefers an inline snapshot; otherwise it loads the stored
// session and snapshots it. Failure here rejects the request before any
// transport is touched.
func (d *Dispatcher) resolveSession(ctx context.Context, req *PrintRequest) (SessionSnapshot, error) {
	if req.Session != nil {
		return *req.Session, nil
	}
	if req.SessionID == "" {
		return SessionSnapshot{}, ErrNoSession
	}

	sess, err := d.store.GetSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, milkdb.ErrSessionNotFound) {
			return SessionSnapshot{}, fmt.Errorf("%w: %s", ErrNoSession, req.SessionID)
		}
		return SessionSnapshot{}, err
	}

	return SnapshotSession(sess), nil
}

// SnapshotSession freezes the printable fields of a stored session.
func SnapshotSession(sess *milkdb.Session) SessionSnapshot {
	return SessionSnapshot{
		ID:          sess.ID,
		Timestamp:   sess.Timestamp,
		AmountOz:    sess.AmountOz,
		Notes:       sess.Notes,
		UseByFridge: sess.UseByFridge,
		UseByFrozen: sess.UseByFrozen,
	}
}
