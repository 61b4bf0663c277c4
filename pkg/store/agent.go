package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/frankbria/codeframe/pkg/models"
)

const agentCols = `id, project_id, role, status, current_task_id, created_at, last_heartbeat,
	total_tokens_in, total_tokens_out, total_cost_cents`

func scanAgent(row interface{ Scan(dest ...any) error }) (*models.Agent, error) {
	var a models.Agent
	var role, status, createdAt, heartbeat string
	err := row.Scan(&a.ID, &a.ProjectID, &role, &status, &a.CurrentTaskID, &createdAt, &heartbeat,
		&a.TotalTokensIn, &a.TotalTokensOut, &a.TotalCostCents)
	if err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	a.Status = models.AgentStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.LastHeartbeat = parseTime(heartbeat)
	return &a, nil
}

// CreateAgent inserts a new pooled worker. This is the "create" path of
// get_or_create; the pool itself decides when an idle agent can be reused
// instead of calling this.
func (s *Store) CreateAgent(ctx context.Context, projectID int64, role models.Role) (*models.Agent, error) {
	now := nowRFC3339()
	var id int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO agents
			(project_id, role, status, current_task_id, created_at, last_heartbeat)
			VALUES (?, ?, 'idle', 0, ?, ?)`, projectID, string(role), now, now)
		if err != nil {
			return wrapPersistence(err)
		}
		id, err = res.LastInsertId()
		return wrapPersistence(err)
	})
	if err != nil {
		return nil, err
	}
	agent, err := s.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventAgentCreated,
		Payload: map[string]any{"agent_id": agent.ID, "role": string(role)}})
	return agent, nil
}

// GetAgent fetches one agent by id.
func (s *Store) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return a, nil
}

// ListAgents returns every agent for a project, optionally filtered by
// status (empty string means all).
func (s *Store) ListAgents(ctx context.Context, projectID int64, status models.AgentStatus) ([]*models.Agent, error) {
	query := `SELECT ` + agentCols + ` FROM agents WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()
	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, wrapPersistence(err)
		}
		out = append(out, a)
	}
	return out, wrapPersistence(rows.Err())
}

// UpdateAgentStatus transitions an agent's status and (when assigning work)
// its current task. Unlike task/project transitions this isn't
// precondition-guarded: pool membership changes are owned by a single
// AgentPool per project, not contended across callers.
func (s *Store) UpdateAgentStatus(ctx context.Context, agentID int64, status models.AgentStatus, currentTaskID int64) error {
	var projectID int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT project_id FROM agents WHERE id = ?`, agentID).Scan(&projectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return wrapPersistence(err)
		}
		_, err := tx.ExecContext(ctx, `UPDATE agents SET status = ?, current_task_id = ? WHERE id = ?`,
			string(status), currentTaskID, agentID)
		return wrapPersistence(err)
	})
	if err != nil {
		return err
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventAgentStatusChanged,
		Payload: map[string]any{"agent_id": agentID, "status": string(status)}})
	return nil
}

// RecordHeartbeat updates an agent's liveness timestamp, which
// RecoverOrphanedTasks compares against its cutoff to tell an abandoned
// claim from a live one.
func (s *Store) RecordHeartbeat(ctx context.Context, agentID int64) error {
	now := nowRFC3339()
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE agents SET last_heartbeat = ? WHERE id = ?`, now, agentID)
		return wrapPersistence(err)
	})
}

// AccrueAgentUsage adds token/cost totals to an agent's running tally.
func (s *Store) AccrueAgentUsage(ctx context.Context, agentID int64, tokensIn, tokensOut, cents int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE agents SET total_tokens_in = total_tokens_in + ?,
			total_tokens_out = total_tokens_out + ?, total_cost_cents = total_cost_cents + ? WHERE id = ?`,
			tokensIn, tokensOut, cents, agentID)
		return wrapPersistence(err)
	})
}
