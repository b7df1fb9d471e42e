package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	milkdb "github.com/josephwaligorski/milklabel/internal/db"
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusClaimed JobStatus = "claimed"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

var ErrJobNotFound = errors.New("print job not found")

// Queue is the durable print-job store. All mutations run against a
// single-connection sqlite handle, so claim and complete are serialized:
// two concurrent claims can never select the same job.
type Queue struct {
	conn *sql.DB
}

func NewQueue(conn *sql.DB) *Queue {
	return &Queue{conn: conn}
}

// Enqueue records a new job in the queued state. The session snapshot is
// serialized once here and never rewritten. printerID nil means any agent
// may claim the job.
func (q *Queue) Enqueue(ctx context.Context, snap SessionSnapshot, printerID *string) (*milkdb.PrintJob, error) {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize session snapshot: %w", err)
	}

	// An empty target means unassigned; the row stores NULL and the
	// returned job must agree.
	if printerID != nil && *printerID == "" {
		printerID = nil
	}

	job := &milkdb.PrintJob{
		ID:        uuid.NewString(),
		PrinterID: printerID,
		Status:    string(JobStatusQueued),
		Session:   snapJSON,
		CreatedAt: time.Now().UTC(),
	}

	var pid interface{}
	if printerID != nil {
		pid = *printerID
	}

	_, err = q.conn.ExecContext(ctx, milkdb.InsertJob,
		job.ID, pid, job.Status, string(job.Session), job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	return job, nil
}

// Claim hands out the next eligible queued job, or nil when nothing
// matches. An identified agent gets its own targeted jobs first, oldest
// first, then falls through to unassigned jobs; an anonymous agent only
// ever sees unassigned jobs. The select and the status flip share one
// transaction.
func (q *Queue) Claim(ctx context.Context, printerID *string) (*milkdb.PrintJob, error) {
	tx, err := q.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var job *milkdb.PrintJob
	if printerID != nil && *printerID != "" {
		job, err = scanJobRow(tx.QueryRowContext(ctx, milkdb.NextTargetedJob, *printerID))
		if err != nil {
			return nil, err
		}
	}
	if job == nil {
		job, err = scanJobRow(tx.QueryRowContext(ctx, milkdb.NextUnassignedJob))
		if err != nil {
			return nil, err
		}
	}
	if job == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	var claimer interface{}
	if printerID != nil && *printerID != "" {
		claimer = *printerID
	}

	result, err := tx.ExecContext(ctx, milkdb.ClaimJob, claimer, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		// Lost a race with another claimer; report no work this cycle.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = string(JobStatusClaimed)
	job.ClaimedAt = &now
	if printerID != nil && *printerID != "" {
		job.ClaimedBy = printerID
	}

	return job, nil
}

// Complete moves a job to done or failed and stamps finishedAt. Calling it
// again overwrites the previous outcome; agents only report once per claim
// in the intended flow.
func (q *Queue) Complete(ctx context.Context, jobID string, success bool, errMsg string) (*milkdb.PrintJob, error) {
	status := JobStatusDone
	if !success {
		status = JobStatusFailed
	}
	if success {
		errMsg = ""
	}

	now := time.Now().UTC()
	result, err := q.conn.ExecContext(ctx, milkdb.CompleteJob, string(status), errMsg, now, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrJobNotFound
	}

	return q.Get(ctx, jobID)
}

func (q *Queue) Get(ctx context.Context, jobID string) (*milkdb.PrintJob, error) {
	job, err := scanJobRow(q.conn.QueryRowContext(ctx, milkdb.GetJobByID, jobID))
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (q *Queue) ListByStatus(ctx context.Context, status JobStatus, limit, offset int) ([]*milkdb.PrintJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.conn.QueryContext(ctx, milkdb.ListJobsByStatus, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*milkdb.PrintJob
	for rows.Next() {
		job := &milkdb.PrintJob{}
		var printerID, claimedBy sql.NullString
		var claimedAt, finishedAt sql.NullTime
		var sessionJSON string
		if err := rows.Scan(
			&job.ID, &printerID, &job.Status, &sessionJSON, &job.Error,
			&claimedBy, &job.CreatedAt, &claimedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job.Session = json.RawMessage(sessionJSON)
		applyNullables(job, printerID, claimedBy, claimedAt, finishedAt)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Snapshot decodes the session snapshot embedded in a job.
func Snapshot(job *milkdb.PrintJob) (SessionSnapshot, error) {
	var snap SessionSnapshot
	if err := json.Unmarshal(job.Session, &snap); err != nil {
		return SessionSnapshot{}, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(row rowScanner) (*milkdb.PrintJob, error) {
	job := &milkdb.PrintJob{}
	var printerID, claimedBy sql.NullString
	var claimedAt, finishedAt sql.NullTime
	var sessionJSON string
	err := row.Scan(
		&job.ID, &printerID, &job.Status, &sessionJSON, &job.Error,
		&claimedBy, &job.CreatedAt, &claimedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Session = json.RawMessage(sessionJSON)
	applyNullables(job, printerID, claimedBy, claimedAt, finishedAt)
	return job, nil
}

func applyNullables(job *milkdb.PrintJob, printerID, claimedBy sql.NullString, claimedAt, finishedAt sql.NullTime) {
	if printerID.Valid {
		job.PrinterID = &printerID.String
	}
	if claimedBy.Valid {
		job.ClaimedBy = &claimedBy.String
	}
	if claimedAt.Valid {
		job.ClaimedAt = &claimedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
}
