// Package worker implements the polymorphic, per-role task executor the
// coordinator dispatches claimed tasks to. Each role owns a strategy that
// builds a role-specific prompt, calls the CompletionProvider once, and
// interprets the result into artifacts — a single-call shape rather than a
// multi-turn tool-calling loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
)

// OutcomeStatus is the terminal disposition of one task execution attempt.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is what Execute returns: enough for the coordinator to update the
// task row, accrue cost, and decide whether to retry.
type Outcome struct {
	Status      OutcomeStatus
	Artifacts   []string
	Comment     string
	Err         error
	Retryable   bool
	TokensIn    int64
	TokensOut   int64
	CostCents   int64
}

// TaskContext carries everything a strategy needs to work one task, without
// giving it direct Store access — workers are stateless between
// invocations and only ever see what the coordinator decides to hand them.
type TaskContext struct {
	Task          *models.Task
	ProjectName   string
	WorkspacePath string
	PRDExcerpt    string
	Model         string
	MaxTokens     int
}

// Strategy is the per-role execution strategy. Implementations build a
// role-appropriate prompt, call the CompletionProvider, and interpret the
// result into artifacts.
type Strategy interface {
	Execute(ctx context.Context, prov provider.CompletionProvider, tc TaskContext) (*Outcome, error)
}

// WorkerAgent executes one task end-to-end via its role Strategy.
type WorkerAgent struct {
	role     models.Role
	strategy Strategy
}

// NewWorkerAgent builds a WorkerAgent wrapping the given strategy. Panics
// on a nil strategy — a missing strategy is a wiring bug in Factory, not a
// runtime condition callers should handle.
func NewWorkerAgent(role models.Role, strategy Strategy) *WorkerAgent {
	if strategy == nil {
		panic("worker: NewWorkerAgent: strategy must not be nil")
	}
	return &WorkerAgent{role: role, strategy: strategy}
}

// Role reports which role this worker was built for.
func (w *WorkerAgent) Role() models.Role { return w.role }

// Execute runs the task, translating context cancellation/deadline and
// CompletionProvider error classification into an Outcome the coordinator
// can act on without inspecting error types itself.
func (w *WorkerAgent) Execute(ctx context.Context, prov provider.CompletionProvider, tc TaskContext) *Outcome {
	result, err := w.strategy.Execute(ctx, prov, tc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Outcome{Status: OutcomeFailed, Err: err, Retryable: true, Comment: "task execution timed out"}
		}
		if errors.Is(err, context.Canceled) {
			return &Outcome{Status: OutcomeCancelled, Err: err, Comment: "task execution was cancelled"}
		}
		var provErr *provider.Error
		if errors.As(err, &provErr) {
			return &Outcome{Status: OutcomeFailed, Err: err, Retryable: provErr.Retryable(), Comment: provErr.Message}
		}
		return &Outcome{Status: OutcomeFailed, Err: err, Retryable: false, Comment: err.Error()}
	}
	if result == nil {
		return &Outcome{Status: OutcomeFailed, Err: fmt.Errorf("strategy returned nil outcome"), Comment: "internal error: empty strategy result"}
	}
	return result
}

// Factory builds a WorkerAgent for a role. The coordinator builds one for
// each task it dispatches; the quality Runner builds its review worker here.
type Factory struct {
	strategies map[models.Role]Strategy
}

// NewFactory wires the four fixed role strategies.
func NewFactory() *Factory {
	return &Factory{
		strategies: map[models.Role]Strategy{
			models.RoleBackend:  &BackendStrategy{},
			models.RoleFrontend: &FrontendStrategy{},
			models.RoleTest:     &TestStrategy{},
			models.RoleReview:   &ReviewStrategy{},
		},
	}
}

// Build returns a WorkerAgent for role, or an error if the role has no
// registered strategy (RoleLead never executes tasks directly).
func (f *Factory) Build(role models.Role) (*WorkerAgent, error) {
	strat, ok := f.strategies[role]
	if !ok {
		return nil, fmt.Errorf("worker: no strategy registered for role %q", role)
	}
	return NewWorkerAgent(role, strat), nil
}
