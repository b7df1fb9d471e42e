package db

import (
	"encoding/json"
	"time"
)

// Session is a recorded pumping session. Expiry timestamps are derived at
// creation time and stored as plain fields.
type Session struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	AmountOz    float64   `json:"amount_oz"`
	Notes       string    `json:"notes,omitempty"`
	UseByFridge time.Time `json:"use_by_fridge"`
	UseByFrozen time.Time `json:"use_by_frozen"`
	CreatedAt   time.Time `json:"created_at"`
}

// PrintJob is one print attempt queued for a polling agent. The session
// snapshot is serialized JSON, frozen at enqueue time; the job record is
// append-only apart from the claim/complete transitions.
type PrintJob struct {
	ID         string          `json:"id"`
	PrinterID  *string         `json:"printerId"`
	Status     string          `json:"status"`
	Session    json.RawMessage `json:"session"`
	Error      string          `json:"error,omitempty"`
	ClaimedBy  *string         `json:"claimedBy,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	ClaimedAt  *time.Time      `json:"claimedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Agent is a remote print agent as last reported by its heartbeat.
// Version and capabilities are free-form metadata and are not validated.
type Agent struct {
	PrinterID    string    `json:"printerId"`
	LastSeen     time.Time `json:"lastSeen"`
	AgentVersion string    `json:"agentVersion,omitempty"`
	Capabilities string    `json:"capabilities,omitempty"`
}
