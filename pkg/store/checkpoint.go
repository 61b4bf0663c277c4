package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/frankbria/codeframe/pkg/models"
)

const checkpointCols = `id, project_id, name, description, git_sha, created_at`

func scanCheckpoint(row interface{ Scan(dest ...any) error }) (*models.Checkpoint, error) {
	var c models.Checkpoint
	var createdAt string
	err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.GitSHA, &createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// CreateCheckpoint records a named git snapshot row. The actual git commit
// is taken by pkg/checkpoint before this is called; Store only owns the
// (project_id, name) -> sha index. Returns ErrConflict if the name is
// already taken for this project: checkpoint names are unique per project.
func (s *Store) CreateCheckpoint(ctx context.Context, projectID int64, name, description, sha string) (*models.Checkpoint, error) {
	now := nowRFC3339()
	var id int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO checkpoints (project_id, name, description, git_sha, created_at)
			VALUES (?, ?, ?, ?, ?)`, projectID, name, description, sha, now)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return fmt.Errorf("%w: checkpoint name %q already used", ErrConflict, name)
			}
			return wrapPersistence(err)
		}
		id, err = res.LastInsertId()
		return wrapPersistence(err)
	})
	if err != nil {
		return nil, err
	}
	cp, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventCheckpointCreated,
		Payload: map[string]any{"checkpoint_id": cp.ID, "name": name}})
	return cp, nil
}

// GetCheckpoint fetches a checkpoint by id.
func (s *Store) GetCheckpoint(ctx context.Context, id int64) (*models.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+checkpointCols+` FROM checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return cp, nil
}

// ListCheckpoints returns a project's checkpoints, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, projectID int64) ([]*models.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+checkpointCols+` FROM checkpoints
		WHERE project_id = ? ORDER BY id DESC`, projectID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()
	var out []*models.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, wrapPersistence(err)
		}
		out = append(out, cp)
	}
	return out, wrapPersistence(rows.Err())
}

func isUniqueConstraintErr(err error) bool {
	// modernc.org/sqlite doesn't export a typed constraint-violation error;
	// it surfaces the SQLite result code only in the error text.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
