package checkpoint

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/store"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "codeframe.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestProject(t *testing.T, st *store.Store) (*models.Project, string) {
	t.Helper()
	workspace := t.TempDir()
	p, err := st.CreateProject(context.Background(), models.Project{
		Name:          "proj",
		SourceType:    models.SourceEmpty,
		WorkspacePath: workspace,
	})
	require.NoError(t, err)
	return p, workspace
}

func TestManagerCreateAndList(t *testing.T) {
	requireGit(t)
	st := newTestStore(t)
	p, workspace := newTestProject(t, st)

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "hello.txt"), []byte("hi"), 0o644))

	m := New(st)
	cp, err := m.Create(context.Background(), p.ID, workspace, "c1", "first snapshot")
	require.NoError(t, err)
	assert.Equal(t, "c1", cp.Name)
	assert.NotEmpty(t, cp.GitSHA)

	list, err := m.List(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cp.GitSHA, list[0].GitSHA)
}

func TestManagerCreateDuplicateNameConflicts(t *testing.T) {
	requireGit(t)
	st := newTestStore(t)
	p, workspace := newTestProject(t, st)

	m := New(st)
	_, err := m.Create(context.Background(), p.ID, workspace, "c1", "")
	require.NoError(t, err)

	_, err = m.Create(context.Background(), p.ID, workspace, "c1", "")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestManagerDiffReflectsSubsequentChanges(t *testing.T) {
	requireGit(t)
	st := newTestStore(t)
	p, workspace := newTestProject(t, st)

	m := New(st)
	cp, err := m.Create(context.Background(), p.ID, workspace, "c1", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "new.txt"), []byte("added"), 0o644))
	g, err := newGitRunner(workspace)
	require.NoError(t, err)
	_, err = g.commitAll(context.Background(), "add new.txt")
	require.NoError(t, err)

	diff, err := m.Diff(context.Background(), workspace, cp)
	require.NoError(t, err)
	assert.Contains(t, diff, "new.txt")
}

func TestManagerRestoreDiscardsLaterChanges(t *testing.T) {
	requireGit(t)
	st := newTestStore(t)
	p, workspace := newTestProject(t, st)

	m := New(st)
	cp, err := m.Create(context.Background(), p.ID, workspace, "c1", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "later.txt"), []byte("later"), 0o644))
	g, err := newGitRunner(workspace)
	require.NoError(t, err)
	_, err = g.commitAll(context.Background(), "later change")
	require.NoError(t, err)

	require.NoError(t, m.Restore(context.Background(), p.ID, workspace, cp))

	_, statErr := os.Stat(filepath.Join(workspace, "later.txt"))
	assert.True(t, os.IsNotExist(statErr))

	updated, err := st.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, cp.GitSHA, updated.CurrentCommit)
}

func TestManagerRestoreFailsDuringActiveSession(t *testing.T) {
	requireGit(t)
	st := newTestStore(t)
	p, workspace := newTestProject(t, st)

	m := New(st)
	cp, err := m.Create(context.Background(), p.ID, workspace, "c1", "")
	require.NoError(t, err)

	_, err = st.CreateSession(context.Background(), p.ID)
	require.NoError(t, err)

	err = m.Restore(context.Background(), p.ID, workspace, cp)
	assert.ErrorIs(t, err, ErrActiveSession)
}
