package models

import "time"

// Checkpoint is a named git snapshot of a project's workspace.
// (project_id, name) is unique; the Store holds the canonical row while
// the git SHA it references lives in the workspace's own object store.
type Checkpoint struct {
	ID          int64
	ProjectID   int64
	Name        string
	Description string
	GitSHA      string
	CreatedAt   time.Time
}
