package pool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/store"
)

func newTestStore(t *testing.T) (*store.Store, int64) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "codeframe.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p, err := s.CreateProject(context.Background(), models.Project{Name: "demo", SourceType: models.SourceEmpty, WorkspacePath: "/ws/demo"})
	require.NoError(t, err)
	return s, p.ID
}

func TestAcquireReusesIdleAgent(t *testing.T) {
	s, projectID := newTestStore(t)
	pool := New(s, projectID, 2)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx, models.RoleBackend)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))

	lease2, err := pool.Acquire(ctx, models.RoleBackend)
	require.NoError(t, err)
	assert.Equal(t, lease.Agent.ID, lease2.Agent.ID, "a released agent should be reused before a new one is created")
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	s, projectID := newTestStore(t)
	pool := New(s, projectID, 1)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx, models.RoleBackend)
	require.NoError(t, err)

	blockedCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(blockedCtx, models.RoleFrontend)
	assert.Error(t, err, "pool at capacity should block until released or ctx expires")

	require.NoError(t, lease.Release(ctx))
	lease2, err := pool.Acquire(ctx, models.RoleFrontend)
	require.NoError(t, err)
	assert.Equal(t, models.RoleFrontend, lease2.Agent.Role)
}

func TestRetireRemovesMemberPermanently(t *testing.T) {
	s, projectID := newTestStore(t)
	pool := New(s, projectID, 1)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx, models.RoleTest)
	require.NoError(t, err)
	require.NoError(t, lease.Retire(ctx))

	assert.Empty(t, pool.Members())
}
