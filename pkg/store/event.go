package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/frankbria/codeframe/pkg/models"
)

// AppendEvent writes a permanent audit row for evt. This is independent of
// the in-process EventBus broadcast (pkg/eventbus): the Store's notify()
// hook fans an event out live to subscribers, while AppendEvent gives it
// durable history for the `events.list` surface. Callers that want both
// call AppendEvent explicitly in addition to the implicit notify() most
// mutators already perform.
func (s *Store) AppendEvent(ctx context.Context, evt models.Event) (*models.Event, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, err
	}
	now := nowRFC3339()
	var id int64
	txErr := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO events (project_id, session_id, ts, kind, payload)
			VALUES (?, ?, ?, ?, ?)`, evt.ProjectID, evt.SessionID, now, string(evt.Kind), string(payload))
		if err != nil {
			return wrapPersistence(err)
		}
		id, err = res.LastInsertId()
		return wrapPersistence(err)
	})
	if txErr != nil {
		return nil, txErr
	}
	evt.ID = id
	evt.Timestamp = parseTime(now)
	return &evt, nil
}

// ListEvents returns a project's audit log, newest first, capped at limit
// (0 means no cap).
func (s *Store) ListEvents(ctx context.Context, projectID int64, limit int) ([]*models.Event, error) {
	query := `SELECT id, project_id, session_id, ts, kind, payload FROM events WHERE project_id = ? ORDER BY id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var e models.Event
		var ts, kind, payload string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.SessionID, &ts, &kind, &payload); err != nil {
			return nil, wrapPersistence(err)
		}
		e.Timestamp = parseTime(ts)
		e.Kind = models.EventKind(kind)
		_ = json.Unmarshal([]byte(payload), &e.Payload)
		out = append(out, &e)
	}
	return out, wrapPersistence(rows.Err())
}
