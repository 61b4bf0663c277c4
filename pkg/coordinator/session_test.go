package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
	"github.com/frankbria/codeframe/pkg/store"
)

func singleReadyTask(t *testing.T, st *store.Store, mock *provider.MockProvider) (*models.Project, *models.Task) {
	t.Helper()
	ctx := context.Background()
	p := projectWithPRD(t, st)
	mock.Push(provider.Response{Content: `{"tasks":[{"task_number":"T1","title":"Do the thing","description":"Make it happen"}]}`})

	c := newTestCoordinator(st, mock)
	tasks, err := c.Decompose(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	_, err = c.Approve(ctx, p.ID, nil)
	require.NoError(t, err)

	task, err := st.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	return p, task
}

func taskStatus(t *testing.T, st *store.Store, taskID int64) models.TaskStatus {
	t.Helper()
	task, err := st.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	return task.Status
}

func TestSessionRunsTaskToCompletion(t *testing.T) {
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p, task := singleReadyTask(t, st, mock)

	mock.Push(artifactResponse("implemented the thing", "main.go", "package main\n"))
	mock.Push(reviewPassResponse())

	c := New(st, mock, Config{MaxConcurrentAgents: 1, Model: "m", TickInterval: 5 * time.Millisecond, TaskTimeout: 5 * time.Second})
	_, err := c.StartSession(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return taskStatus(t, st, task.ID) == models.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		updated, err := st.GetProject(context.Background(), p.ID)
		return err == nil && updated.Phase == models.PhaseComplete
	}, 2*time.Second, 10*time.Millisecond)

	final, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, final.Artifacts, 1)
	assert.Equal(t, "main.go", final.Artifacts[0])
}

func TestSessionRetriesRetryableFailureThenCompletes(t *testing.T) {
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p, task := singleReadyTask(t, st, mock)

	mock.PushError(provider.NewError(provider.ErrorRateLimited, "slow down", nil))
	mock.Push(artifactResponse("implemented the thing on retry", "main.go", "package main\n"))
	mock.Push(reviewPassResponse())

	c := New(st, mock, Config{MaxConcurrentAgents: 1, Model: "m", TickInterval: 5 * time.Millisecond, TaskTimeout: 5 * time.Second})
	_, err := c.StartSession(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return taskStatus(t, st, task.ID) == models.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)

	final, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.AttemptCount)
}

func TestSessionFailsTaskAfterExhaustingQualityGateRetries(t *testing.T) {
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p, task := singleReadyTask(t, st, mock)

	for i := 0; i < models.DefaultMaxAttempts; i++ {
		mock.Push(artifactResponse("implemented the thing, badly", "main.go", "package main\n"))
		mock.Push(provider.Response{Content: `{"findings":[{"severity":"critical","message":"sql injection"}]}`})
	}

	c := New(st, mock, Config{MaxConcurrentAgents: 1, Model: "m", TickInterval: 5 * time.Millisecond, TaskTimeout: 5 * time.Second})
	_, err := c.StartSession(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return taskStatus(t, st, task.ID) == models.TaskFailed
	}, 3*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		updated, err := st.GetProject(context.Background(), p.ID)
		return err == nil && updated.Phase == models.PhaseReview
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPauseSessionStopsLaunchingTasks(t *testing.T) {
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p, task := singleReadyTask(t, st, mock)

	// A long tick interval gives PauseSession room to land well before the
	// loop's first tick would otherwise claim the ready task.
	c := New(st, mock, Config{MaxConcurrentAgents: 1, Model: "m", TickInterval: 200 * time.Millisecond, TaskTimeout: 5 * time.Second})
	_, err := c.StartSession(context.Background(), p.ID)
	require.NoError(t, err)
	require.NoError(t, c.PauseSession(context.Background(), p.ID))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, models.TaskReady, taskStatus(t, st, task.ID))

	require.NoError(t, c.ResumeSession(context.Background(), p.ID))
	mock.Push(artifactResponse("implemented after resume", "main.go", "package main\n"))
	mock.Push(reviewPassResponse())

	assert.Eventually(t, func() bool {
		return taskStatus(t, st, task.ID) == models.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopSessionHaltsTheLoop(t *testing.T) {
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p, _ := singleReadyTask(t, st, mock)

	c := New(st, mock, Config{MaxConcurrentAgents: 1, Model: "m", TickInterval: 5 * time.Millisecond, TaskTimeout: 5 * time.Second})
	_, err := c.StartSession(context.Background(), p.ID)
	require.NoError(t, err)

	require.NoError(t, c.StopSession(context.Background(), p.ID))

	_, ok := c.getSession(p.ID)
	assert.False(t, ok)

	sess, err := st.GetActiveSession(context.Background(), p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, sess)
}

func TestSessionFailsOnWatchdogExhaustion(t *testing.T) {
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p, task := singleReadyTask(t, st, mock)

	// Force the task in_progress without ever dispatching a worker for it,
	// so every tick sees a task set that is neither ready/blocked nor
	// terminal: zero forward progress, the exact condition the watchdog
	// exists to catch.
	require.NoError(t, st.UpdateTaskStatus(context.Background(), task.ID, models.TaskReady, models.TaskInProgress, store.TaskUpdate{}))

	c := New(st, mock, Config{
		MaxConcurrentAgents: 1, Model: "m",
		TickInterval: 5 * time.Millisecond, TaskTimeout: 5 * time.Second,
		WatchdogMax: 2,
	})
	started, err := c.StartSession(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		sess, err := st.GetSession(context.Background(), started.ID)
		return err == nil && sess.Status == models.SessionFailed && sess.FailureReason == "watchdog"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		updated, err := st.GetProject(context.Background(), p.ID)
		return err == nil && updated.Phase == models.PhaseFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnblockTaskRequiresBlockedOrFailed(t *testing.T) {
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p, task := singleReadyTask(t, st, mock)

	c := newTestCoordinator(st, mock)
	_, err := c.UnblockTask(context.Background(), p.ID, task.ID, "")
	assert.ErrorIs(t, err, ErrTaskNotBlocked)
}

func TestUnblockTaskPersistsGuidanceAsComment(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p, task := singleReadyTask(t, st, mock)

	require.NoError(t, st.UpdateTaskStatus(ctx, task.ID, models.TaskReady, models.TaskFailed, store.TaskUpdate{}))

	c := newTestCoordinator(st, mock)
	updated, err := c.UnblockTask(ctx, p.ID, task.ID, "check the retry budget before trying again")
	require.NoError(t, err)
	assert.Equal(t, models.TaskReady, updated.Status)
	require.NotNil(t, updated.Comment)
	assert.Equal(t, "check the retry budget before trying again", *updated.Comment)
}

func TestUnblockTaskRequiresActivePhase(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mock := provider.NewMockProvider()
	p := projectWithPRD(t, st)
	mock.Push(provider.Response{Content: `{"tasks":[{"task_number":"T1","title":"Do the thing","description":"Make it happen"}]}`})

	c := newTestCoordinator(st, mock)
	tasks, err := c.Decompose(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	_, err = c.UnblockTask(ctx, p.ID, tasks[0].ID, "")
	assert.ErrorIs(t, err, store.ErrConflict)
}
