package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frankbria/codeframe/pkg/models"
)

const sessionCols = `id, project_id, started_at, ended_at, status, last_iteration, watchdog_count, failure_reason`

func scanSession(row interface{ Scan(dest ...any) error }) (*models.Session, error) {
	var sess models.Session
	var startedAt string
	var endedAt sql.NullString
	var status string
	err := row.Scan(&sess.ID, &sess.ProjectID, &startedAt, &endedAt, &status, &sess.LastIteration,
		&sess.WatchdogCount, &sess.FailureReason)
	if err != nil {
		return nil, err
	}
	sess.StartedAt = parseTime(startedAt)
	sess.Status = models.SessionStatus(status)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		sess.EndedAt = &t
	}
	return &sess, nil
}

// CreateSession starts a new coordination run. Returns ErrConflict if the
// project already has a session in SessionActive or SessionPaused: at most
// one session per project may be active at a time.
func (s *Store) CreateSession(ctx context.Context, projectID int64) (*models.Session, error) {
	now := nowRFC3339()
	var id int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions
			WHERE project_id = ? AND status IN ('active', 'paused')`, projectID).Scan(&existing); err != nil {
			return wrapPersistence(err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: a session is already active for this project", ErrConflict)
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO sessions
			(project_id, started_at, status, last_iteration, watchdog_count, failure_reason)
			VALUES (?, ?, 'active', 0, 0, '')`, projectID, now)
		if err != nil {
			return wrapPersistence(err)
		}
		id, err = res.LastInsertId()
		return wrapPersistence(err)
	})
	if err != nil {
		return nil, err
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(models.Event{ProjectID: projectID, SessionID: id, Kind: models.EventSessionStarted})
	return sess, nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return sess, nil
}

// GetActiveSession returns the project's current active/paused session, if any.
func (s *Store) GetActiveSession(ctx context.Context, projectID int64) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions
		WHERE project_id = ? AND status IN ('active', 'paused') ORDER BY id DESC LIMIT 1`, projectID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return sess, nil
}

// UpdateSessionStatus transitions a session's status, stamping ended_at for
// terminal statuses and recording a failure_reason when provided.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID int64, status models.SessionStatus, failureReason string) error {
	now := nowRFC3339()
	var projectID int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT project_id FROM sessions WHERE id = ?`, sessionID).Scan(&projectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return wrapPersistence(err)
		}
		var endedAt any
		if status == models.SessionCompleted || status == models.SessionFailed || status == models.SessionStopped {
			endedAt = now
		}
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET status = ?, ended_at = ?, failure_reason = ? WHERE id = ?`,
			string(status), endedAt, failureReason, sessionID)
		return wrapPersistence(err)
	})
	if err != nil {
		return err
	}

	var kind models.EventKind
	switch status {
	case models.SessionPaused:
		kind = models.EventSessionPaused
	case models.SessionCompleted:
		kind = models.EventSessionCompleted
	case models.SessionFailed:
		kind = models.EventSessionFailed
	default:
		return nil
	}
	s.notify(models.Event{ProjectID: projectID, SessionID: sessionID, Kind: kind, Payload: map[string]any{"failure_reason": failureReason}})
	return nil
}

// IncrementIteration advances a session's tick counter, used by the
// coordinator's execution loop and by deadlock/timeout diagnostics.
func (s *Store) IncrementIteration(ctx context.Context, sessionID int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET last_iteration = last_iteration + 1 WHERE id = ?`, sessionID)
		return wrapPersistence(err)
	})
}

// BumpWatchdog increments a session's no-progress counter (consecutive
// ticks that moved no task) and returns the new value, so the coordinator
// can compare it against WATCHDOG_MAX.
func (s *Store) BumpWatchdog(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET watchdog_count = watchdog_count + 1 WHERE id = ?`, sessionID); err != nil {
			return wrapPersistence(err)
		}
		return tx.QueryRowContext(ctx, `SELECT watchdog_count FROM sessions WHERE id = ?`, sessionID).Scan(&count)
	})
	return count, err
}

// ResetWatchdog clears the no-progress counter after a tick that made progress.
func (s *Store) ResetWatchdog(ctx context.Context, sessionID int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET watchdog_count = 0 WHERE id = ?`, sessionID)
		return wrapPersistence(err)
	})
}
