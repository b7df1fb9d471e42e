package db

const (
	InsertSession = `
		INSERT INTO sessions (id, timestamp, amount_oz, notes, use_by_fridge, use_by_frozen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	GetSessionByID = `
		SELECT id, timestamp, amount_oz, notes, use_by_fridge, use_by_frozen, created_at
		FROM sessions WHERE id = ?
	`

	ListSessions = `
		SELECT id, timestamp, amount_oz, notes, use_by_fridge, use_by_frozen, created_at
		FROM sessions ORDER BY timestamp DESC LIMIT ? OFFSET ?
	`

	DeleteSession = `DELETE FROM sessions WHERE id = ?`
)

const (
	InsertJob = `
		INSERT INTO print_jobs (id, printer_id, status, session_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	GetJobByID = `
		SELECT id, printer_id, status, session_json, error_message, claimed_by, created_at, claimed_at, finished_at
		FROM print_jobs WHERE id = ?
	`

	// Oldest queued job targeted at a specific agent.
	NextTargetedJob = `
		SELECT id, printer_id, status, session_json, error_message, claimed_by, created_at, claimed_at, finished_at
		FROM print_jobs
		WHERE status = 'queued' AND printer_id = ?
		ORDER BY created_at ASC LIMIT 1
	`

	// Oldest queued job with no target, claimable by any agent.
	NextUnassignedJob = `
		SELECT id, printer_id, status, session_json, error_message, claimed_by, created_at, claimed_at, finished_at
		FROM print_jobs
		WHERE status = 'queued' AND printer_id IS NULL
		ORDER BY created_at ASC LIMIT 1
	`

	ClaimJob = `
		UPDATE print_jobs SET status = 'claimed', claimed_by = ?, claimed_at = ?
		WHERE id = ? AND status = 'queued'
	`

	CompleteJob = `
		UPDATE print_jobs SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`

	ListJobsByStatus = `
		SELECT id, printer_id, status, session_json, error_message, claimed_by, created_at, claimed_at, finished_at
		FROM print_jobs WHERE status = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
)

const (
	UpsertAgent = `
		INSERT INTO agents (printer_id, last_seen, agent_version, capabilities)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(printer_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			agent_version = excluded.agent_version,
			capabilities = excluded.capabilities
	`

	GetAgentByID = `
		SELECT printer_id, last_seen, agent_version, capabilities
		FROM agents WHERE printer_id = ?
	`

	ListAgents = `
		SELECT printer_id, last_seen, agent_version, capabilities
		FROM agents ORDER BY last_seen DESC
	`
)
