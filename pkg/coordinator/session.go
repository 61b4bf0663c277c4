package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frankbria/codeframe/pkg/assign"
	"github.com/frankbria/codeframe/pkg/graph"
	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/pool"
	"github.com/frankbria/codeframe/pkg/store"
	"github.com/frankbria/codeframe/pkg/worker"
)

// taskResult is what one task-executing goroutine hands back to the tick
// loop once its CompletionProvider call (and any cost recording) is done.
type taskResult struct {
	task    *models.Task
	project *models.Project
	lease   *pool.Lease
	role    models.Role
	outcome *worker.Outcome
}

// StartSession begins the multi-agent execution loop for a project that has
// already had its decomposition approved (phase active). Only one running
// session per project may exist within this Coordinator at a time.
func (c *Coordinator) StartSession(ctx context.Context, projectID int64) (*models.Session, error) {
	if _, ok := c.getSession(projectID); ok {
		return nil, ErrSessionAlreadyRunning
	}
	project, err := c.st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Phase != models.PhaseActive {
		return nil, fmt.Errorf("%w: starting a session requires phase active, project is %s", store.ErrConflict, project.Phase)
	}

	sess, err := c.st.CreateSession(ctx, projectID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rs := &runningSession{
		sessionID:   sess.ID,
		startedAt:   sess.StartedAt,
		pool:        pool.New(c.st, projectID, c.cfg.MaxConcurrentAgents),
		cancel:      cancel,
		done:        make(chan struct{}),
		completions: make(chan taskResult, c.cfg.MaxConcurrentAgents),
	}

	c.mu.Lock()
	c.sessions[projectID] = rs
	c.mu.Unlock()

	go c.runLoop(runCtx, rs, projectID)
	return sess, nil
}

// PauseSession suspends launching new tasks; tasks already in flight run to
// completion.
func (c *Coordinator) PauseSession(ctx context.Context, projectID int64) error {
	rs, ok := c.getSession(projectID)
	if !ok {
		return ErrSessionNotRunning
	}
	rs.mu.Lock()
	rs.paused = true
	rs.mu.Unlock()
	return c.st.UpdateSessionStatus(ctx, rs.sessionID, models.SessionPaused, "")
}

// ResumeSession lets a paused session start launching tasks again.
func (c *Coordinator) ResumeSession(ctx context.Context, projectID int64) error {
	rs, ok := c.getSession(projectID)
	if !ok {
		return ErrSessionNotRunning
	}
	rs.mu.Lock()
	rs.paused = false
	rs.mu.Unlock()
	return c.st.UpdateSessionStatus(ctx, rs.sessionID, models.SessionActive, "")
}

// StopSession cancels the execution loop and waits for it to exit before
// returning. In-flight task goroutines abandon their work without updating
// task rows; those tasks stay in_progress and need a future session or
// UnblockTask to move again.
func (c *Coordinator) StopSession(ctx context.Context, projectID int64) error {
	rs, ok := c.getSession(projectID)
	if !ok {
		return ErrSessionNotRunning
	}
	rs.cancel()
	<-rs.done

	c.mu.Lock()
	delete(c.sessions, projectID)
	c.mu.Unlock()

	return c.st.UpdateSessionStatus(ctx, rs.sessionID, models.SessionStopped, "stopped by client")
}

// UnblockTask is the human-in-the-loop override: a task stuck blocked (a
// failed dependency) or failed (exhausted retries) can be pushed back to
// ready, letting the next tick pick it up again. guidance, when non-empty,
// is recorded as the task's comment so the agent that picks it up next sees
// why a human intervened.
func (c *Coordinator) UnblockTask(ctx context.Context, projectID, taskID int64, guidance string) (*models.Task, error) {
	project, err := c.st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Phase != models.PhaseActive {
		return nil, fmt.Errorf("%w: tasks.unblock requires phase active", store.ErrConflict)
	}

	task, err := c.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.ProjectID != projectID {
		return nil, store.ErrNotFound
	}
	if task.Status != models.TaskBlocked && task.Status != models.TaskFailed {
		return nil, ErrTaskNotBlocked
	}

	upd := store.TaskUpdate{}
	if guidance != "" {
		upd.Comment = &guidance
	}
	if err := c.st.UpdateTaskStatus(ctx, taskID, task.Status, models.TaskReady, upd); err != nil {
		return nil, err
	}
	return c.st.GetTask(ctx, taskID)
}

// runLoop is the per-session goroutine: it reacts to task completions as
// they arrive and otherwise re-evaluates the dependency graph on a fixed
// tick, until the context is cancelled or every task reaches a terminal
// state.
func (c *Coordinator) runLoop(ctx context.Context, rs *runningSession, projectID int64) {
	defer close(rs.done)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-rs.completions:
			c.handleCompletion(ctx, rs, res)
		case <-ticker.C:
		}

		rs.mu.Lock()
		paused := rs.paused
		rs.mu.Unlock()
		if paused {
			continue
		}

		progressed, done, err := c.tick(ctx, rs, projectID)
		if err != nil {
			continue // transient store error; next tick retries
		}

		_ = c.st.IncrementIteration(ctx, rs.sessionID)
		if progressed {
			_ = c.st.ResetWatchdog(ctx, rs.sessionID)
		} else if count, werr := c.st.BumpWatchdog(ctx, rs.sessionID); werr == nil && count > c.cfg.WatchdogMax {
			c.failSession(ctx, rs, projectID, "watchdog")
			return
		}
		if !rs.startedAt.IsZero() && time.Since(rs.startedAt) > c.cfg.SessionTimeout {
			c.failSession(ctx, rs, projectID, "timeout")
			return
		}

		if done {
			return
		}
	}
}

// failSession marks a session and its project failed for a terminal reason
// detected by the tick loop itself (watchdog exhaustion, wall-clock timeout)
// rather than by a task outcome.
func (c *Coordinator) failSession(ctx context.Context, rs *runningSession, projectID int64, reason string) {
	c.warnings.add(projectID, WarningCategoryWatchdog, fmt.Sprintf("session failed: %s", reason))
	_ = c.st.UpdateSessionStatus(ctx, rs.sessionID, models.SessionFailed, reason)
	if err := c.st.TransitionProjectPhase(ctx, projectID, models.PhaseActive, models.PhaseFailed); err != nil && !errors.Is(err, store.ErrConflict) {
		slog.Error("transition project to failed", "project_id", projectID, "reason", reason, "error", err)
	}
}

func taskNodes(tasks []*models.Task) []graph.Node {
	nodes := make([]graph.Node, 0, len(tasks))
	for _, t := range tasks {
		nodes = append(nodes, graph.Node{ID: t.ID, TaskNumber: t.TaskNumber, Status: t.Status, DependsOn: t.DependsOn})
	}
	return nodes
}

// tick refreshes ready/blocked status, cascades a detected deadlock into
// failures, launches as many ready tasks as the pool has room for, and
// reports whether the project's task set has become fully terminal. The
// first return value is whether this tick made any forward progress
// (a status promotion or a task launch), which the watchdog uses to decide
// whether the session is stuck.
func (c *Coordinator) tick(ctx context.Context, rs *runningSession, projectID int64) (bool, bool, error) {
	progressed := false

	project, err := c.st.GetProject(ctx, projectID)
	if err != nil {
		return false, false, err
	}

	tasks, err := c.st.ListTasks(ctx, projectID, store.TaskFilter{})
	if err != nil {
		return false, false, err
	}
	statusByID := make(map[int64]models.TaskStatus, len(tasks))
	for _, t := range tasks {
		statusByID[t.ID] = t.Status
	}

	result := graph.Evaluate(taskNodes(tasks))

	for _, n := range result.ReadySet {
		if statusByID[n.ID] != models.TaskPending {
			continue
		}
		if err := c.st.UpdateTaskStatus(ctx, n.ID, models.TaskPending, models.TaskReady, store.TaskUpdate{}); err != nil && !errors.Is(err, store.ErrConflict) {
			return false, false, err
		}
		progressed = true
	}
	for _, n := range result.BlockedSet {
		from := statusByID[n.ID]
		if from == models.TaskBlocked {
			continue
		}
		if err := c.st.UpdateTaskStatus(ctx, n.ID, from, models.TaskBlocked, store.TaskUpdate{}); err != nil && !errors.Is(err, store.ErrConflict) {
			return false, false, err
		}
		progressed = true
	}

	// A deadlock only ever fires on non-terminal blocked tasks, which never
	// resolve on their own. Cascade them to failed so the task set eventually
	// becomes fully terminal and the session can conclude.
	if result.DeadlockReason != "" {
		blocked, err := c.st.ListTasks(ctx, projectID, store.TaskFilter{Status: models.TaskBlocked})
		if err != nil {
			return false, false, err
		}
		for _, t := range blocked {
			comment := result.DeadlockReason
			_ = c.st.UpdateTaskStatus(ctx, t.ID, models.TaskBlocked, models.TaskFailed, store.TaskUpdate{Comment: &comment})
		}
		return true, false, nil
	}

	ready, err := c.st.ListTasks(ctx, projectID, store.TaskFilter{Status: models.TaskReady})
	if err != nil {
		return progressed, false, err
	}

	var prdContent string
	if len(ready) > 0 {
		if state, err := c.st.GetDiscoveryState(ctx, projectID); err == nil {
			prdContent = state.PRDContent
		}
	}

	for _, t := range ready {
		decision := assign.Assign(t.Title, t.Description, models.Role(t.AssignedRole))
		lease, ok, err := rs.pool.TryAcquire(ctx, decision.Role)
		if err != nil {
			return progressed, false, err
		}
		if !ok {
			break // pool is at capacity; remaining ready tasks wait for next tick
		}

		roleStr := string(decision.Role)
		agentID := lease.Agent.ID
		if err := c.st.UpdateTaskStatus(ctx, t.ID, models.TaskReady, models.TaskInProgress,
			store.TaskUpdate{AssignedRole: &roleStr, AssignedAgentID: &agentID, BumpAttempt: true}); err != nil {
			_ = lease.Release(ctx)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return progressed, false, err
		}

		claimed, err := c.st.GetTask(ctx, t.ID)
		if err != nil {
			_ = lease.Release(ctx)
			return progressed, false, err
		}
		_ = c.st.RecordHeartbeat(ctx, agentID)
		go c.runTask(rs, project, prdContent, claimed, lease, decision.Role)
		progressed = true
	}

	finalTasks, err := c.st.ListTasks(ctx, projectID, store.TaskFilter{})
	if err != nil {
		return progressed, false, err
	}
	if graph.Evaluate(taskNodes(finalTasks)).IsComplete {
		return progressed, true, c.finishSession(ctx, rs, projectID, finalTasks)
	}
	return progressed, false, nil
}

// runTask executes one claimed task's CompletionProvider call outside the
// tick loop and reports the outcome back over rs.completions. It never
// touches task rows directly — handleCompletion, running on the tick
// loop's single goroutine, owns every status transition.
func (c *Coordinator) runTask(rs *runningSession, project *models.Project, prdContent string, task *models.Task, lease *pool.Lease, role models.Role) {
	taskCtx, cancel := context.WithTimeout(context.Background(), c.cfg.TaskTimeout)
	defer cancel()

	wa, err := c.factory.Build(role)
	var outcome *worker.Outcome
	if err != nil {
		outcome = &worker.Outcome{Status: worker.OutcomeFailed, Err: err, Comment: err.Error()}
	} else {
		outcome = wa.Execute(taskCtx, c.prov, c.taskContextFor(project, prdContent, task))
	}

	if outcome.TokensIn > 0 || outcome.TokensOut > 0 || outcome.CostCents > 0 {
		_, _ = c.st.RecordCost(context.Background(), models.CostRecord{
			ProjectID: project.ID, AgentID: lease.Agent.ID, TaskID: task.ID,
			Model: c.cfg.Model, TokensIn: outcome.TokensIn, TokensOut: outcome.TokensOut, Cents: outcome.CostCents,
		})
	}

	select {
	case rs.completions <- taskResult{task: task, project: project, lease: lease, role: role, outcome: outcome}:
	case <-rs.done:
	}
}

// handleCompletion applies one task's execution outcome: a successful
// completion runs the quality gates before the task can become completed;
// a failed attempt retries (if retryable and attempts remain) or fails the
// task outright; a cancelled attempt always goes back to ready.
func (c *Coordinator) handleCompletion(ctx context.Context, rs *runningSession, res taskResult) {
	defer func() { _ = res.lease.Release(ctx) }()
	defer func() { _ = c.st.ResetWatchdog(ctx, rs.sessionID) }()

	task := res.task
	switch res.outcome.Status {
	case worker.OutcomeCompleted:
		report := c.qrunner.Run(ctx, task, res.project.WorkspacePath)
		for i, gateRes := range report.Results {
			status := models.GateNotRun
			switch gateRes.Status {
			case models.GateRunPassed:
				status = models.GatePassed
			case models.GateRunFailed:
				status = models.GateFailed
			}
			if i == len(report.Results)-1 {
				if report.Passed {
					status = models.GatePassed
				} else {
					status = models.GateFailed
				}
			}
			_ = c.st.InsertFindings(ctx, task.ID, gateRes.Gate, status, gateRes.Findings)
		}
		if report.Passed {
			comment := res.outcome.Comment
			_ = c.st.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress, models.TaskCompleted,
				store.TaskUpdate{Artifacts: res.outcome.Artifacts, Comment: &comment})
		} else {
			c.retryOrFail(ctx, task, "quality gate failed")
		}
	case worker.OutcomeFailed:
		c.warnings.add(res.project.ID, WarningCategoryProvider, fmt.Sprintf("task %s completion failed: %s", task.TaskNumber, res.outcome.Comment))
		if res.outcome.Retryable && task.AttemptCount < task.MaxAttempts {
			_ = c.st.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress, models.TaskReady, store.TaskUpdate{})
		} else {
			comment := res.outcome.Comment
			_ = c.st.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress, models.TaskFailed, store.TaskUpdate{Comment: &comment})
		}
	case worker.OutcomeCancelled:
		_ = c.st.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress, models.TaskReady, store.TaskUpdate{})
	}
}

// retryOrFail moves a task back to ready if attempts remain, or to failed
// with the given reason recorded as its comment.
func (c *Coordinator) retryOrFail(ctx context.Context, task *models.Task, reason string) {
	comment := reason
	if task.AttemptCount < task.MaxAttempts {
		_ = c.st.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress, models.TaskReady, store.TaskUpdate{Comment: &comment})
	} else {
		_ = c.st.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress, models.TaskFailed, store.TaskUpdate{Comment: &comment})
	}
}

// finishSession closes out a session whose task set is fully terminal,
// advancing the project to review (if anything failed) or complete.
func (c *Coordinator) finishSession(ctx context.Context, rs *runningSession, projectID int64, tasks []*models.Task) error {
	anyFailed := false
	for _, t := range tasks {
		if t.Status == models.TaskFailed {
			anyFailed = true
			break
		}
	}
	target := models.PhaseComplete
	if anyFailed {
		target = models.PhaseReview
	}
	if err := c.st.TransitionProjectPhase(ctx, projectID, models.PhaseActive, target); err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	return c.st.UpdateSessionStatus(ctx, rs.sessionID, models.SessionCompleted, "")
}
