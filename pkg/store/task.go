package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/frankbria/codeframe/pkg/models"
)

// DraftTask is one task awaiting persistence, with dependencies expressed
// by task_number (as produced by decomposition) rather than by id (which
// doesn't exist until insertion).
type DraftTask struct {
	TaskNumber  string
	Title       string
	Description string
	DependsOn   []string // task_numbers
}

// CreateTasks persists an entire decomposition atomically: either every
// task is written, or none are. Cycle/shape validation happens in the
// caller (pkg/graph, pkg/coordinator) before this is called; CreateTasks
// additionally checks that every depends_on reference resolves within the
// batch.
func (s *Store) CreateTasks(ctx context.Context, projectID int64, drafts []DraftTask) ([]*models.Task, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: empty decomposition", ErrConflict)
	}
	now := nowRFC3339()
	numberToID := make(map[string]int64, len(drafts))

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, d := range drafts {
			res, err := tx.ExecContext(ctx, `INSERT INTO tasks
				(project_id, task_number, title, description, status, max_attempts, quality_gate_status, artifacts, created_at, updated_at)
				VALUES (?, ?, ?, ?, 'pending', ?, 'not_run', '[]', ?, ?)`,
				projectID, d.TaskNumber, d.Title, d.Description, models.DefaultMaxAttempts, now, now)
			if err != nil {
				return wrapPersistence(err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return wrapPersistence(err)
			}
			numberToID[d.TaskNumber] = id
		}
		for _, d := range drafts {
			taskID := numberToID[d.TaskNumber]
			for _, depNum := range d.DependsOn {
				depID, ok := numberToID[depNum]
				if !ok {
					return fmt.Errorf("%w: unresolved dependency %q on task %q", ErrConflict, depNum, d.TaskNumber)
				}
				if _, err := tx.ExecContext(ctx, `INSERT INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)`,
					taskID, depID); err != nil {
					return wrapPersistence(err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tasks, err := s.ListTasks(ctx, projectID, TaskFilter{})
	if err != nil {
		return nil, err
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventTasksDecomposed,
		Payload: map[string]any{"count": len(tasks)}})
	return tasks, nil
}

// TaskFilter narrows ListTasks results; zero value means "all".
type TaskFilter struct {
	Status models.TaskStatus
}

const taskCols = `id, project_id, task_number, title, description, status, assigned_role, assigned_agent_id,
	attempt_count, max_attempts, quality_gate_status, artifacts, comment, created_at, updated_at`

func scanTask(row interface{ Scan(dest ...any) error }) (*models.Task, error) {
	var t models.Task
	var status, gateStatus, artifactsJSON, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.ProjectID, &t.TaskNumber, &t.Title, &t.Description, &status, &t.AssignedRole,
		&t.AssignedAgentID, &t.AttemptCount, &t.MaxAttempts, &gateStatus, &artifactsJSON, &t.Comment, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.QualityGateStatus = models.GateStatus(gateStatus)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	_ = json.Unmarshal([]byte(artifactsJSON), &t.Artifacts)
	return &t, nil
}

func (s *Store) loadDeps(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT depends_on_id FROM task_dependencies WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapPersistence(err)
		}
		out = append(out, id)
	}
	return out, wrapPersistence(rows.Err())
}

// GetTask fetches one task with its dependency set.
func (s *Store) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPersistence(err)
	}
	deps, err := s.loadDeps(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.DependsOn = deps
	return t, nil
}

// ListTasks returns every task for a project (optionally filtered by
// status), each with its dependency set populated.
func (s *Store) ListTasks(ctx context.Context, projectID int64, filter TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE project_id = ?`
	args := []any{projectID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY task_number ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapPersistence(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence(err)
	}
	for _, t := range out {
		deps, err := s.loadDeps(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		t.DependsOn = deps
	}
	return out, nil
}

// UpdateTaskStatus performs the guarded status-check update used to
// serialize scheduler decisions: the row changes only if its current status
// equals `from`. Returns ErrConflict otherwise. upd allows callers to set
// additional fields (role, agent, gate status, comment) in the same
// statement.
type TaskUpdate struct {
	AssignedRole      *string
	AssignedAgentID   *int64
	BumpAttempt       bool
	QualityGateStatus *models.GateStatus
	Artifacts         []string
	Comment           *string
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID int64, from, to models.TaskStatus, upd TaskUpdate) error {
	now := nowRFC3339()
	var applied bool
	var projectID int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id = ?`, taskID).Scan(&projectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return wrapPersistence(err)
		}

		setClauses := "status = ?, updated_at = ?"
		args := []any{string(to), now}
		if upd.AssignedRole != nil {
			setClauses += ", assigned_role = ?"
			args = append(args, *upd.AssignedRole)
		}
		if upd.AssignedAgentID != nil {
			setClauses += ", assigned_agent_id = ?"
			args = append(args, *upd.AssignedAgentID)
		}
		if upd.BumpAttempt {
			setClauses += ", attempt_count = attempt_count + 1"
		}
		if upd.QualityGateStatus != nil {
			setClauses += ", quality_gate_status = ?"
			args = append(args, string(*upd.QualityGateStatus))
		}
		if upd.Artifacts != nil {
			b, _ := json.Marshal(upd.Artifacts)
			setClauses += ", artifacts = ?"
			args = append(args, string(b))
		}
		if upd.Comment != nil {
			setClauses += ", comment = ?"
			args = append(args, *upd.Comment)
		}
		args = append(args, taskID, string(from))

		res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+setClauses+` WHERE id = ? AND status = ?`, args...)
		if err != nil {
			return wrapPersistence(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapPersistence(err)
		}
		applied = n == 1
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return ErrConflict
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventTaskStatusChanged,
		Payload: map[string]any{"task_id": taskID, "from": string(from), "to": string(to)}})
	return nil
}

// ClaimReadyTask atomically selects the `ready` task with the lowest
// task_number (ties broken by id), transitions it to `in_progress`, assigns
// the agent, and bumps attempt_count. Returns
// ErrNotFound if no ready task exists. Claiming must stay exclusive across
// N concurrent callers — at most one caller wins a given task.
func (s *Store) ClaimReadyTask(ctx context.Context, projectID, agentID int64) (*models.Task, error) {
	now := nowRFC3339()
	var taskID int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT id FROM tasks
			WHERE project_id = ? AND status = 'ready' ORDER BY task_number ASC, id ASC LIMIT 1`, projectID).Scan(&taskID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return wrapPersistence(err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET status = 'in_progress', assigned_agent_id = ?,
			attempt_count = attempt_count + 1, updated_at = ? WHERE id = ? AND status = 'ready'`,
			agentID, now, taskID)
		if err != nil {
			return wrapPersistence(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapPersistence(err)
		}
		if n != 1 {
			// Lost a race to another claimant between SELECT and UPDATE
			// despite holding writeMu for the whole transaction — should not
			// happen given single-writer serialization, but treat defensively.
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, taskID)
}

// OrphanedTask identifies one in_progress task whose assigned agent has
// gone quiet, along with the agent id to free alongside it.
type OrphanedTask struct {
	TaskID    int64
	AgentID   int64
	ProjectID int64
}

// RecoverOrphanedTasks resets every in_progress task whose assigned agent's
// last_heartbeat is older than cutoff back to ready, and frees that agent
// to idle. Run once at process startup: a task left in_progress across a
// process crash or restart would otherwise never be picked up again, since
// nothing else transitions it out of in_progress.
func (s *Store) RecoverOrphanedTasks(ctx context.Context, cutoff time.Time) ([]OrphanedTask, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)
	var recovered []OrphanedTask
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT t.id, t.project_id, a.id
			FROM tasks t JOIN agents a ON a.id = t.assigned_agent_id
			WHERE t.status = 'in_progress' AND a.last_heartbeat < ?`, cutoffStr)
		if err != nil {
			return wrapPersistence(err)
		}
		var stale []OrphanedTask
		for rows.Next() {
			var o OrphanedTask
			if err := rows.Scan(&o.TaskID, &o.ProjectID, &o.AgentID); err != nil {
				rows.Close()
				return wrapPersistence(err)
			}
			stale = append(stale, o)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return wrapPersistence(err)
		}
		rows.Close()

		now := nowRFC3339()
		for _, o := range stale {
			res, err := tx.ExecContext(ctx, `UPDATE tasks SET status = 'ready', assigned_agent_id = 0, updated_at = ?
				WHERE id = ? AND status = 'in_progress'`, now, o.TaskID)
			if err != nil {
				return wrapPersistence(err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return wrapPersistence(err)
			}
			if n != 1 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE agents SET status = 'idle', current_task_id = 0 WHERE id = ?`,
				o.AgentID); err != nil {
				return wrapPersistence(err)
			}
			recovered = append(recovered, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, o := range recovered {
		s.notify(models.Event{ProjectID: o.ProjectID, Kind: models.EventTaskStatusChanged,
			Payload: map[string]any{"task_id": o.TaskID, "from": "in_progress", "to": "ready", "reason": "orphan_recovery"}})
	}
	return recovered, nil
}

// ApplyApproval transitions the given excluded tasks to `excluded` and
// promotes every other `pending` task whose dependencies are all
// `completed` or `excluded` to `ready`. Returns the number of tasks moved
// to ready and to excluded.
func (s *Store) ApplyApproval(ctx context.Context, projectID int64, excludedTaskIDs []int64) (readyCount, excludedCount int, err error) {
	now := nowRFC3339()
	excludedSet := make(map[int64]bool, len(excludedTaskIDs))
	for _, id := range excludedTaskIDs {
		excludedSet[id] = true
	}

	txErr := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, id := range excludedTaskIDs {
			res, err := tx.ExecContext(ctx, `UPDATE tasks SET status = 'excluded', updated_at = ?
				WHERE id = ? AND project_id = ? AND status = 'pending'`, now, id, projectID)
			if err != nil {
				return wrapPersistence(err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				excludedCount++
			}
		}

		rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE project_id = ? AND status = 'pending'`, projectID)
		if err != nil {
			return wrapPersistence(err)
		}
		var pendingIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return wrapPersistence(err)
			}
			pendingIDs = append(pendingIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrapPersistence(err)
		}

		statusByID := make(map[int64]string)
		allRows, err := tx.QueryContext(ctx, `SELECT id, status FROM tasks WHERE project_id = ?`, projectID)
		if err != nil {
			return wrapPersistence(err)
		}
		for allRows.Next() {
			var id int64
			var st string
			if err := allRows.Scan(&id, &st); err != nil {
				allRows.Close()
				return wrapPersistence(err)
			}
			statusByID[id] = st
		}
		allRows.Close()
		if err := allRows.Err(); err != nil {
			return wrapPersistence(err)
		}

		for _, id := range pendingIDs {
			deps, err := s.loadDepsTx(ctx, tx, id)
			if err != nil {
				return err
			}
			satisfied := true
			for _, dep := range deps {
				st := statusByID[dep]
				if st != "completed" && st != "excluded" {
					satisfied = false
					break
				}
			}
			if satisfied {
				res, err := tx.ExecContext(ctx, `UPDATE tasks SET status = 'ready', updated_at = ?
					WHERE id = ? AND status = 'pending'`, now, id)
				if err != nil {
					return wrapPersistence(err)
				}
				if n, _ := res.RowsAffected(); n == 1 {
					readyCount++
				}
			}
		}
		return nil
	})
	return readyCount, excludedCount, txErr
}

func (s *Store) loadDepsTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT depends_on_id FROM task_dependencies WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapPersistence(err)
		}
		out = append(out, id)
	}
	return out, wrapPersistence(rows.Err())
}
