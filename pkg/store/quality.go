package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/frankbria/codeframe/pkg/models"
)

// InsertFindings persists every finding from one gate run and updates the
// task's quality_gate_status to match the gate's overall verdict.
func (s *Store) InsertFindings(ctx context.Context, taskID int64, gate models.Gate, status models.GateStatus, findings []models.QualityFinding) error {
	var projectID int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id = ?`, taskID).Scan(&projectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return wrapPersistence(err)
		}
		for _, f := range findings {
			if _, err := tx.ExecContext(ctx, `INSERT INTO quality_findings
				(task_id, gate, severity, file, line, message, recommendation)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				taskID, string(gate), string(f.Severity), f.File, f.Line, f.Message, f.Recommendation); err != nil {
				return wrapPersistence(err)
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE tasks SET quality_gate_status = ?, updated_at = ? WHERE id = ?`,
			string(status), nowRFC3339(), taskID)
		return wrapPersistence(err)
	})
	if err != nil {
		return err
	}
	s.notify(models.Event{ProjectID: projectID, Kind: models.EventQualityGateResult,
		Payload: map[string]any{"task_id": taskID, "gate": string(gate), "status": string(status), "finding_count": len(findings)}})
	return nil
}

// ListFindings returns every finding recorded for a task, across all gates,
// in insertion order.
func (s *Store) ListFindings(ctx context.Context, taskID int64) ([]models.QualityFinding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, gate, severity, file, line, message, recommendation
		FROM quality_findings WHERE task_id = ? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()

	var out []models.QualityFinding
	for rows.Next() {
		var f models.QualityFinding
		var gate, severity string
		if err := rows.Scan(&f.ID, &f.TaskID, &gate, &severity, &f.File, &f.Line, &f.Message, &f.Recommendation); err != nil {
			return nil, wrapPersistence(err)
		}
		f.Gate = models.Gate(gate)
		f.Severity = models.Severity(severity)
		out = append(out, f)
	}
	return out, wrapPersistence(rows.Err())
}
