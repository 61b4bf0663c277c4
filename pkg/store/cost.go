package store

import (
	"context"
	"database/sql"

	"github.com/frankbria/codeframe/pkg/models"
)

// RecordCost inserts one billable completion call and folds its totals into
// the owning agent's running tally, so GetAgent never needs to aggregate
// cost_records at read time.
func (s *Store) RecordCost(ctx context.Context, rec models.CostRecord) (*models.CostRecord, error) {
	now := nowRFC3339()
	var id int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO cost_records
			(project_id, agent_id, task_id, model, tokens_in, tokens_out, cents, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ProjectID, rec.AgentID, rec.TaskID, rec.Model, rec.TokensIn, rec.TokensOut, rec.Cents, now)
		if err != nil {
			return wrapPersistence(err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return wrapPersistence(err)
		}
		if rec.AgentID != 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE agents SET total_tokens_in = total_tokens_in + ?,
				total_tokens_out = total_tokens_out + ?, total_cost_cents = total_cost_cents + ? WHERE id = ?`,
				rec.TokensIn, rec.TokensOut, rec.Cents, rec.AgentID); err != nil {
				return wrapPersistence(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec.ID = id
	rec.Timestamp = parseTime(now)
	s.notify(models.Event{ProjectID: rec.ProjectID, Kind: models.EventCostUpdated,
		Payload: map[string]any{"agent_id": rec.AgentID, "cents": rec.Cents}})
	return &rec, nil
}

// CostSummary is the aggregate response for the metrics.get cost rollup,
// bucketed by a caller-supplied granularity (e.g. per hour).
type CostSummary struct {
	TotalCents     int64
	TotalTokensIn  int64
	TotalTokensOut int64
	Buckets        []CostBucket
}

// CostBucket is one time-bucketed slice of the cost trend.
type CostBucket struct {
	BucketStart string // RFC3339, truncated to the bucket boundary
	Cents       int64
	TokensIn    int64
	TokensOut   int64
}

// GetCostSummary aggregates a project's cost_records, bucketing timestamps
// by truncating to bucketMinutes-wide windows entirely in SQL via strftime.
func (s *Store) GetCostSummary(ctx context.Context, projectID int64, bucketMinutes int) (*CostSummary, error) {
	if bucketMinutes <= 0 {
		bucketMinutes = 60
	}
	var summary CostSummary
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cents), 0), COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0)
		FROM cost_records WHERE project_id = ?`, projectID).
		Scan(&summary.TotalCents, &summary.TotalTokensIn, &summary.TotalTokensOut)
	if err != nil {
		return nil, wrapPersistence(err)
	}

	bucketSeconds := bucketMinutes * 60
	rows, err := s.db.QueryContext(ctx, `SELECT
			datetime((strftime('%s', ts) / ?) * ?, 'unixepoch') AS bucket,
			SUM(cents), SUM(tokens_in), SUM(tokens_out)
		FROM cost_records WHERE project_id = ? GROUP BY bucket ORDER BY bucket ASC`,
		bucketSeconds, bucketSeconds, projectID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()
	for rows.Next() {
		var b CostBucket
		if err := rows.Scan(&b.BucketStart, &b.Cents, &b.TokensIn, &b.TokensOut); err != nil {
			return nil, wrapPersistence(err)
		}
		summary.Buckets = append(summary.Buckets, b)
	}
	return &summary, wrapPersistence(rows.Err())
}
