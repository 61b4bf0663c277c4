// Package checkpoint implements named workspace snapshots backed by git: a
// checkpoint pins the workspace's current commit SHA under a project-unique
// name, and can later be diffed against or restored over the working tree.
// Git itself is driven by shelling out to the git binary rather than a Go
// git library — the example dependency set has no such library, and the
// workspace's materialized file tree is the thing being snapshotted, which
// only the real git binary can do without re-implementing its object model.
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/store"
)

// Manager implements create/list/diff/restore for one project's workspace.
type Manager struct {
	st *store.Store
}

// New builds a Manager backed by st.
func New(st *store.Store) *Manager {
	return &Manager{st: st}
}

// Create commits every pending change in the workspace and records a named
// checkpoint row pinned to the resulting SHA. Checkpoint names are unique
// per project; a duplicate name surfaces the store's ErrConflict unchanged.
func (m *Manager) Create(ctx context.Context, projectID int64, workspacePath, name, description string) (*models.Checkpoint, error) {
	g, err := newGitRunner(workspacePath)
	if err != nil {
		return nil, err
	}
	sha, err := g.commitAll(ctx, fmt.Sprintf("checkpoint: %s", name))
	if err != nil {
		return nil, err
	}
	cp, err := m.st.CreateCheckpoint(ctx, projectID, name, description, sha)
	if err != nil {
		return nil, err
	}
	if err := m.st.SetProjectCommit(ctx, projectID, sha); err != nil {
		return nil, err
	}
	return cp, nil
}

// List returns a project's checkpoints, newest first.
func (m *Manager) List(ctx context.Context, projectID int64) ([]*models.Checkpoint, error) {
	return m.st.ListCheckpoints(ctx, projectID)
}

// Diff returns the unified diff between a checkpoint's SHA and the
// workspace's current HEAD.
func (m *Manager) Diff(ctx context.Context, workspacePath string, cp *models.Checkpoint) (string, error) {
	g, err := newGitRunner(workspacePath)
	if err != nil {
		return "", err
	}
	return g.diff(ctx, cp.GitSHA)
}

// ErrActiveSession is returned when Restore is attempted while the project
// has a running or paused session; restoring would destroy work an agent
// may currently be mid-write on.
var ErrActiveSession = errors.New("checkpoint: project has an active session")

// Restore resets the workspace's working tree to cp's commit, discarding
// every change made since. It fails fast with ErrActiveSession if the
// project currently has an active or paused session — restore is only safe
// once a session has been stopped.
func (m *Manager) Restore(ctx context.Context, projectID int64, workspacePath string, cp *models.Checkpoint) error {
	if _, err := m.st.GetActiveSession(ctx, projectID); err == nil {
		return ErrActiveSession
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	g, err := newGitRunner(workspacePath)
	if err != nil {
		return err
	}
	if err := g.restore(ctx, cp.GitSHA); err != nil {
		return err
	}
	return m.st.SetProjectCommit(ctx, projectID, cp.GitSHA)
}
