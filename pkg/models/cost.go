package models

import "time"

// CostRecord is one billable LLM completion call, attributed to an agent
// and (optionally) the task it was working.
type CostRecord struct {
	ID        int64
	ProjectID int64
	AgentID   int64
	TaskID    int64 // 0 means unset
	Model     string
	TokensIn  int64
	TokensOut int64
	Cents     int64
	Timestamp time.Time
}
