package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
)

func TestDetectCycleFindsCycle(t *testing.T) {
	nodes := []Node{
		{ID: 1, TaskNumber: "T1", DependsOn: []int64{2}},
		{ID: 2, TaskNumber: "T2", DependsOn: []int64{3}},
		{ID: 3, TaskNumber: "T3", DependsOn: []int64{1}},
	}
	err := DetectCycle(nodes)
	require.Error(t, err)
	var cycErr *CycleError
	require.ErrorAs(t, err, &cycErr)
}

func TestDetectCycleAcyclic(t *testing.T) {
	nodes := []Node{
		{ID: 1, TaskNumber: "T1"},
		{ID: 2, TaskNumber: "T2", DependsOn: []int64{1}},
		{ID: 3, TaskNumber: "T3", DependsOn: []int64{1, 2}},
	}
	assert.NoError(t, DetectCycle(nodes))
}

// TestEvaluateDiamond exercises a diamond dependency: B,C depend on A;
// D depends on B and C.
func TestEvaluateDiamond(t *testing.T) {
	nodes := []Node{
		{ID: 1, TaskNumber: "A", Status: models.TaskPending},
		{ID: 2, TaskNumber: "B", Status: models.TaskPending, DependsOn: []int64{1}},
		{ID: 3, TaskNumber: "C", Status: models.TaskPending, DependsOn: []int64{1}},
		{ID: 4, TaskNumber: "D", Status: models.TaskPending, DependsOn: []int64{2, 3}},
	}
	res := Evaluate(nodes)
	require.Len(t, res.ReadySet, 1)
	assert.Equal(t, int64(1), res.ReadySet[0].ID)
	assert.False(t, res.IsComplete)

	// A completes: B and C become ready, in task_number order.
	nodes[0].Status = models.TaskCompleted
	res = Evaluate(nodes)
	require.Len(t, res.ReadySet, 2)
	assert.Equal(t, "B", res.ReadySet[0].TaskNumber)
	assert.Equal(t, "C", res.ReadySet[1].TaskNumber)

	// B and C complete: D becomes ready.
	nodes[1].Status = models.TaskCompleted
	nodes[2].Status = models.TaskCompleted
	res = Evaluate(nodes)
	require.Len(t, res.ReadySet, 1)
	assert.Equal(t, "D", res.ReadySet[0].TaskNumber)

	nodes[3].Status = models.TaskCompleted
	res = Evaluate(nodes)
	assert.True(t, res.IsComplete)
	assert.Empty(t, res.ReadySet)
}

func TestEvaluateDeadlock(t *testing.T) {
	nodes := []Node{
		{ID: 1, TaskNumber: "A", Status: models.TaskFailed},
		{ID: 2, TaskNumber: "B", Status: models.TaskPending, DependsOn: []int64{1}},
	}
	res := Evaluate(nodes)
	assert.NotEmpty(t, res.DeadlockReason)
	assert.False(t, res.IsComplete)
}

func TestEvaluatePure(t *testing.T) {
	nodes := []Node{
		{ID: 1, TaskNumber: "A", Status: models.TaskPending},
	}
	r1 := Evaluate(nodes)
	r2 := Evaluate(nodes)
	assert.Equal(t, r1, r2)
}
