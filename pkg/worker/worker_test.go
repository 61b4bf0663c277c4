package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
)

func TestFactoryBuildsRegisteredRoles(t *testing.T) {
	f := NewFactory()
	for _, role := range []models.Role{models.RoleBackend, models.RoleFrontend, models.RoleTest, models.RoleReview} {
		w, err := f.Build(role)
		require.NoError(t, err)
		assert.Equal(t, role, w.Role())
	}
}

func TestFactoryRejectsLeadRole(t *testing.T) {
	f := NewFactory()
	_, err := f.Build(models.RoleLead)
	assert.Error(t, err)
}

func TestWorkerAgentExecuteSuccess(t *testing.T) {
	f := NewFactory()
	w, err := f.Build(models.RoleBackend)
	require.NoError(t, err)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{
		Content:   `{"files":[{"path":"api.go","content":"package api\n"}],"summary":"added handler"}`,
		TokensIn:  10,
		TokensOut: 20,
	})

	outcome := w.Execute(context.Background(), mock, TaskContext{
		Task:          &models.Task{TaskNumber: "T1", Title: "add health endpoint"},
		ProjectName:   "demo",
		WorkspacePath: t.TempDir(),
	})
	assert.Equal(t, OutcomeCompleted, outcome.Status)
	assert.Equal(t, int64(10), outcome.TokensIn)
	require.Len(t, outcome.Artifacts, 1)
	assert.Equal(t, "api.go", outcome.Artifacts[0])
}

func TestWorkerAgentExecuteClassifiesRetryableError(t *testing.T) {
	f := NewFactory()
	w, err := f.Build(models.RoleTest)
	require.NoError(t, err)

	mock := provider.NewMockProvider()
	mock.PushError(provider.NewError(provider.ErrorRateLimited, "slow down", nil))

	outcome := w.Execute(context.Background(), mock, TaskContext{Task: &models.Task{TaskNumber: "T1"}})
	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.True(t, outcome.Retryable)
}

func TestWorkerAgentExecuteNonRetryableAuthError(t *testing.T) {
	f := NewFactory()
	w, err := f.Build(models.RoleFrontend)
	require.NoError(t, err)

	mock := provider.NewMockProvider()
	mock.PushError(provider.NewError(provider.ErrorAuth, "bad key", nil))

	outcome := w.Execute(context.Background(), mock, TaskContext{Task: &models.Task{TaskNumber: "T1"}})
	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.False(t, outcome.Retryable)
}

func TestWorkerAgentExecuteCancelled(t *testing.T) {
	f := NewFactory()
	w, err := f.Build(models.RoleReview)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := provider.NewMockProvider()
	mock.PushError(context.Canceled)

	outcome := w.Execute(ctx, mock, TaskContext{Task: &models.Task{TaskNumber: "T1"}})
	assert.Equal(t, OutcomeCancelled, outcome.Status)
}
