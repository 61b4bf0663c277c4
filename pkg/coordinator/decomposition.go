package coordinator

import (
	"context"
	"fmt"

	"github.com/frankbria/codeframe/pkg/graph"
	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
	"github.com/frankbria/codeframe/pkg/store"
)

const decompositionSystemPrompt = `You are the planning agent on an autonomous software delivery team. Break
the product requirements document into an ordered list of concrete, independently reviewable coding tasks.
Express dependencies between tasks by task_number. Keep the graph acyclic.`

// Decompose calls the completion provider to break a project's PRD into
// tasks, validates the resulting dependency graph, and persists every task
// as pending. Returns ErrCyclicDecomposition (with no rows written) if the
// model's output contains a cycle or a dangling dependency.
func (c *Coordinator) Decompose(ctx context.Context, projectID int64) ([]*models.Task, error) {
	project, err := c.st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	state, err := c.st.GetDiscoveryState(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if state.PRDStatus != models.PRDAvailable {
		return nil, fmt.Errorf("%w: PRD is not available", store.ErrConflict)
	}

	schema, err := provider.DecompositionSchema()
	if err != nil {
		return nil, err
	}
	resp, err := c.prov.Complete(ctx, provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: decompositionSystemPrompt},
			{Role: provider.RoleUser, Content: "Product requirements document:\n\n" + state.PRDContent},
		},
		Model:          c.cfg.Model,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseSchema: schema,
	})
	if err != nil {
		return nil, err
	}
	decomp, err := provider.ParseDecomposition(resp.Content)
	if err != nil {
		return nil, err
	}
	if len(decomp.Tasks) == 0 {
		return nil, fmt.Errorf("%w: empty decomposition", ErrCyclicDecomposition)
	}

	numberToID := make(map[string]int64, len(decomp.Tasks))
	for i, t := range decomp.Tasks {
		numberToID[t.TaskNumber] = int64(i + 1)
	}
	nodes := make([]graph.Node, 0, len(decomp.Tasks))
	drafts := make([]store.DraftTask, 0, len(decomp.Tasks))
	for _, t := range decomp.Tasks {
		var depIDs []int64
		for _, dep := range t.DependsOn {
			id, ok := numberToID[dep]
			if !ok {
				return nil, fmt.Errorf("%w: task %q depends on unknown task_number %q", ErrCyclicDecomposition, t.TaskNumber, dep)
			}
			depIDs = append(depIDs, id)
		}
		nodes = append(nodes, graph.Node{
			ID: numberToID[t.TaskNumber], TaskNumber: t.TaskNumber,
			Status: models.TaskPending, DependsOn: depIDs,
		})
		drafts = append(drafts, store.DraftTask{
			TaskNumber: t.TaskNumber, Title: t.Title, Description: t.Description, DependsOn: t.DependsOn,
		})
	}

	if err := graph.DetectCycle(nodes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCyclicDecomposition, err)
	}

	return c.st.CreateTasks(ctx, projectID, drafts)
}

// ApprovalResult mirrors the tasks/approve endpoint's response body.
type ApprovalResult struct {
	Phase           models.Phase
	ApprovedCount   int
	ExcludedCount   int
	AlreadyApproved bool
}

// Approve applies the client's decomposition decision: excludedTaskIDs
// become excluded, remaining pending tasks with satisfied dependencies
// become ready, and the project advances planning->active. Re-approving an
// already-active project with no pending tasks left to decide is a no-op
// reported via ApprovalResult.AlreadyApproved.
func (c *Coordinator) Approve(ctx context.Context, projectID int64, excludedTaskIDs []int64) (*ApprovalResult, error) {
	project, err := c.st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if project.Phase == models.PhaseActive {
		tasks, err := c.st.ListTasks(ctx, projectID, store.TaskFilter{Status: models.TaskPending})
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			return &ApprovalResult{Phase: project.Phase, AlreadyApproved: true}, nil
		}
	}
	if project.Phase != models.PhasePlanning && project.Phase != models.PhaseActive {
		return nil, fmt.Errorf("%w: approval requires phase planning, project is %s", store.ErrConflict, project.Phase)
	}

	readyCount, excludedCount, err := c.st.ApplyApproval(ctx, projectID, excludedTaskIDs)
	if err != nil {
		return nil, err
	}

	if project.Phase == models.PhasePlanning {
		if err := c.st.TransitionProjectPhase(ctx, projectID, models.PhasePlanning, models.PhaseActive); err != nil {
			return nil, err
		}
	}

	return &ApprovalResult{Phase: models.PhaseActive, ApprovedCount: readyCount, ExcludedCount: excludedCount}, nil
}
