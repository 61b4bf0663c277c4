package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
	"github.com/frankbria/codeframe/pkg/store"
)

func projectWithPRD(t *testing.T, st *store.Store) *models.Project {
	t.Helper()
	p := newTestProject(t, st)
	ctx := context.Background()
	require.NoError(t, st.CompleteDiscovery(ctx, p.ID))
	require.NoError(t, st.SetPRDStatus(ctx, p.ID, models.PRDAvailable, "Build a login page and an API behind it."))
	return p
}

func TestDecomposeRequiresAvailablePRD(t *testing.T) {
	st := newTestStore(t)
	p := newTestProject(t, st)

	c := newTestCoordinator(st, provider.NewMockProvider())
	_, err := c.Decompose(context.Background(), p.ID)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestDecomposeCreatesOrderedTasks(t *testing.T) {
	st := newTestStore(t)
	p := projectWithPRD(t, st)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{Content: `{"tasks":[
		{"task_number":"T1","title":"Build login API","description":"..."},
		{"task_number":"T2","title":"Build login page","description":"...","depends_on":["T1"]}
	]}`})

	c := newTestCoordinator(st, mock)
	tasks, err := c.Decompose(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	byNumber := map[string]*models.Task{}
	for _, task := range tasks {
		byNumber[task.TaskNumber] = task
	}
	assert.Empty(t, byNumber["T1"].DependsOn)
	require.Len(t, byNumber["T2"].DependsOn, 1)
	assert.Equal(t, byNumber["T1"].ID, byNumber["T2"].DependsOn[0])
}

func TestDecomposeRejectsCyclicGraph(t *testing.T) {
	st := newTestStore(t)
	p := projectWithPRD(t, st)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{Content: `{"tasks":[
		{"task_number":"T1","title":"A","description":"...","depends_on":["T2"]},
		{"task_number":"T2","title":"B","description":"...","depends_on":["T1"]}
	]}`})

	c := newTestCoordinator(st, mock)
	_, err := c.Decompose(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrCyclicDecomposition)

	tasks, err := st.ListTasks(context.Background(), p.ID, store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks, "no task rows should be written when the graph is cyclic")
}

func TestDecomposeRejectsEmptyResult(t *testing.T) {
	st := newTestStore(t)
	p := projectWithPRD(t, st)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{Content: `{"tasks":[]}`})

	c := newTestCoordinator(st, mock)
	_, err := c.Decompose(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrCyclicDecomposition)
}

func TestApproveTransitionsToActiveAndExcludesTasks(t *testing.T) {
	st := newTestStore(t)
	p := projectWithPRD(t, st)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{Content: `{"tasks":[
		{"task_number":"T1","title":"A","description":"..."},
		{"task_number":"T2","title":"B","description":"..."}
	]}`})

	c := newTestCoordinator(st, mock)
	tasks, err := c.Decompose(context.Background(), p.ID)
	require.NoError(t, err)

	var excluded int64
	for _, task := range tasks {
		if task.TaskNumber == "T2" {
			excluded = task.ID
		}
	}

	result, err := c.Approve(context.Background(), p.ID, []int64{excluded})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, result.Phase)
	assert.Equal(t, 1, result.ApprovedCount)
	assert.Equal(t, 1, result.ExcludedCount)
	assert.False(t, result.AlreadyApproved)

	updated, err := st.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, updated.Phase)
}

func TestApproveRejectsWrongPhase(t *testing.T) {
	st := newTestStore(t)
	p := newTestProject(t, st)

	c := newTestCoordinator(st, provider.NewMockProvider())
	_, err := c.Approve(context.Background(), p.ID, nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}
