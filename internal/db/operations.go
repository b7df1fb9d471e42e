package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAgentNotFound   = errors.New("agent not found")
)

// Store wraps the sqlite handle with typed operations for sessions and
// agents. Job mutations live in core.Queue, which owns the claim/complete
// transaction boundary.
type Store struct {
	conn *sql.DB
}

func NewStore(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

func (s *Store) Conn() *sql.DB {
	return s.conn
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.conn.ExecContext(ctx, InsertSession,
		sess.ID, sess.Timestamp, sess.AmountOz, sess.Notes,
		sess.UseByFridge, sess.UseByFrozen, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	err := s.conn.QueryRowContext(ctx, GetSessionByID, id).Scan(
		&sess.ID, &sess.Timestamp, &sess.AmountOz, &sess.Notes,
		&sess.UseByFridge, &sess.UseByFrozen, &sess.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, ListSessions, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(
			&sess.ID, &sess.Timestamp, &sess.AmountOz, &sess.Notes,
			&sess.UseByFridge, &sess.UseByFrozen, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, DeleteSession, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Store) UpsertAgent(ctx context.Context, a *Agent) error {
	if a.LastSeen.IsZero() {
		a.LastSeen = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, UpsertAgent,
		a.PrinterID, a.LastSeen, a.AgentVersion, a.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, printerID string) (*Agent, error) {
	a := &Agent{}
	err := s.conn.QueryRowContext(ctx, GetAgentByID, printerID).Scan(
		&a.PrinterID, &a.LastSeen, &a.AgentVersion, &a.Capabilities)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.conn.QueryContext(ctx, ListAgents)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a := &Agent{}
		if err := rows.Scan(&a.PrinterID, &a.LastSeen, &a.AgentVersion, &a.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
