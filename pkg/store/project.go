package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frankbria/codeframe/pkg/models"
)

// CreateProject inserts a new project in PhaseDiscovery, seeds its
// DiscoveryState row, and notifies a phase change from "" to discovery.
func (s *Store) CreateProject(ctx context.Context, p models.Project) (*models.Project, error) {
	now := nowRFC3339()
	var id int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO projects
			(name, description, source_type, source_location, source_branch, workspace_path, git_initialized, current_commit, phase, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?)`,
			p.Name, p.Description, string(p.SourceType), p.SourceLocation, p.SourceBranch, p.WorkspacePath,
			string(models.PhaseDiscovery), now, now)
		if err != nil {
			return wrapPersistence(err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return wrapPersistence(err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO discovery_states (project_id, state, prd_status, prd_content)
			VALUES (?, 'not_started', 'none', '')`, id)
		return wrapPersistence(err)
	})
	if err != nil {
		return nil, err
	}
	created, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(models.Event{ProjectID: id, Kind: models.EventProjectPhaseChanged,
		Payload: map[string]any{"from": "", "to": string(models.PhaseDiscovery)}})
	return created, nil
}

func scanProject(row interface{ Scan(dest ...any) error }) (*models.Project, error) {
	var p models.Project
	var sourceType, phase, createdAt, updatedAt string
	var gitInit int
	err := row.Scan(&p.ID, &p.Name, &p.Description, &sourceType, &p.SourceLocation, &p.SourceBranch,
		&p.WorkspacePath, &gitInit, &p.CurrentCommit, &phase, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.SourceType = models.SourceType(sourceType)
	p.Phase = models.Phase(phase)
	p.GitInitialized = gitInit != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

const projectCols = `id, name, description, source_type, source_location, source_branch, workspace_path, git_initialized, current_commit, phase, created_at, updated_at`

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return p, nil
}

// ListProjects returns all projects, most recently created first.
func (s *Store) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectCols+` FROM projects ORDER BY id DESC`)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, wrapPersistence(err)
		}
		out = append(out, p)
	}
	return out, wrapPersistence(rows.Err())
}

// TransitionProjectPhase moves a project from `from` to `to`, validated by
// models.ValidPhaseTransition, and applies the status-check update pattern
// used throughout the Store: the row changes only if its current phase
// still equals `from`.
func (s *Store) TransitionProjectPhase(ctx context.Context, projectID int64, from, to models.Phase) error {
	if !models.ValidPhaseTransition(from, to) {
		return fmt.Errorf("%w: invalid phase transition %s->%s", ErrConflict, from, to)
	}
	now := nowRFC3339()
	var applied bool
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE projects SET phase = ?, updated_at = ? WHERE id = ? AND phase = ?`,
			string(to), now, projectID, string(from))
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
	s.notify(models.Event{
		ProjectID: projectID,
		Kind:      models.EventProjectPhaseChanged,
		Payload:   map[string]any{"from": string(from), "to": string(to)},
	})
	return nil
}

// SetProjectCommit updates the workspace's current commit SHA, used after
// a checkpoint is created and after one is restored.
func (s *Store) SetProjectCommit(ctx context.Context, projectID int64, sha string) error {
	now := nowRFC3339()
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE projects SET current_commit = ?, git_initialized = 1, updated_at = ? WHERE id = ?`,
			sha, now, projectID)
		return wrapPersistence(err)
	})
}
