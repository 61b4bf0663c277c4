package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frankbria/codeframe/pkg/models"
)

// GetDiscoveryState returns the discovery record for a project, including
// all questions asked so far in order.
func (s *Store) GetDiscoveryState(ctx context.Context, projectID int64) (*models.DiscoveryState, error) {
	var d models.DiscoveryState
	d.ProjectID = projectID
	var state, prdStatus, prdContent string
	err := s.db.QueryRowContext(ctx, `SELECT state, prd_status, prd_content FROM discovery_states WHERE project_id = ?`, projectID).
		Scan(&state, &prdStatus, &prdContent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPersistence(err)
	}
	d.State = models.DiscoveryPhase(state)
	d.PRDStatus = models.PRDStatus(prdStatus)
	d.PRDContent = prdContent

	rows, err := s.db.QueryContext(ctx, `SELECT id, text, answer, asked_at, answered_at FROM discovery_questions
		WHERE project_id = ? ORDER BY seq ASC`, projectID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()
	for rows.Next() {
		var q models.DiscoveryQuestion
		var askedAt string
		var answeredAt sql.NullString
		if err := rows.Scan(&q.ID, &q.Text, &q.Answer, &askedAt, &answeredAt); err != nil {
			return nil, wrapPersistence(err)
		}
		q.AskedAt = parseTime(askedAt)
		if answeredAt.Valid {
			t := parseTime(answeredAt.String)
			q.AnsweredAt = &t
		}
		d.Questions = append(d.Questions, q)
	}
	return &d, wrapPersistence(rows.Err())
}

// AskQuestion persists a new discovery question, enforcing the invariant
// that at most one question may be unanswered at a time.
func (s *Store) AskQuestion(ctx context.Context, projectID int64, text string) (*models.DiscoveryQuestion, error) {
	var q models.DiscoveryQuestion
	now := nowRFC3339()
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var pending int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM discovery_questions
			WHERE project_id = ? AND answered_at IS NULL`, projectID).Scan(&pending); err != nil {
			return wrapPersistence(err)
		}
		if pending > 0 {
			return fmt.Errorf("%w: a question is already pending", ErrConflict)
		}

		var seq int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM discovery_questions WHERE project_id = ?`, projectID).Scan(&seq); err != nil {
			return wrapPersistence(err)
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO discovery_questions (project_id, seq, text, answer, asked_at)
			VALUES (?, ?, ?, '', ?)`, projectID, seq, text, now)
		if err != nil {
			return wrapPersistence(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return wrapPersistence(err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE discovery_states SET state = 'discovering' WHERE project_id = ?`, projectID)
		if err != nil {
			return wrapPersistence(err)
		}
		q = models.DiscoveryQuestion{ID: id, Text: text, AskedAt: parseTime(now)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventDiscoveryQuestion,
		Payload: map[string]any{"question_id": q.ID, "text": q.Text}})
	return &q, nil
}

// AnswerQuestion records the answer to the single pending question. Returns
// ErrConflict if there is no pending question to answer.
func (s *Store) AnswerQuestion(ctx context.Context, projectID int64, text string) (*models.DiscoveryQuestion, error) {
	var q models.DiscoveryQuestion
	now := nowRFC3339()
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var id int64
		var qText string
		err := tx.QueryRowContext(ctx, `SELECT id, text FROM discovery_questions
			WHERE project_id = ? AND answered_at IS NULL ORDER BY seq DESC LIMIT 1`, projectID).Scan(&id, &qText)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no pending question", ErrConflict)
		}
		if err != nil {
			return wrapPersistence(err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE discovery_questions SET answer = ?, answered_at = ? WHERE id = ?`,
			text, now, id); err != nil {
			return wrapPersistence(err)
		}
		q = models.DiscoveryQuestion{ID: id, Text: qText, Answer: text}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventDiscoveryAnswered,
		Payload: map[string]any{"question_id": q.ID, "answer": text}})
	return &q, nil
}

// CompleteDiscovery marks the discovery state completed, the precondition
// for PRD generation and the discovery->planning phase transition.
func (s *Store) CompleteDiscovery(ctx context.Context, projectID int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE discovery_states SET state = 'completed' WHERE project_id = ?`, projectID)
		return wrapPersistence(err)
	})
}

// SetPRDStatus updates the PRD generation status and, for `available`,
// its content.
func (s *Store) SetPRDStatus(ctx context.Context, projectID int64, status models.PRDStatus, content string) error {
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE discovery_states SET prd_status = ?, prd_content = ? WHERE project_id = ?`,
			string(status), content, projectID)
		return wrapPersistence(err)
	})
	if err != nil {
		return err
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventPRDStatus, Payload: map[string]any{"status": string(status)}})
	return nil
}
