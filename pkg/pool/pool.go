// Package pool implements AgentPool: the per-project cap on concurrently
// busy worker agents. A counting semaphore from golang.org/x/sync/semaphore
// gates how many agents may be Busy at once; a plain mutex-protected map
// tracks pool membership so get_or_create can reuse an Idle agent before
// minting a new row.
package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/store"
)

// AgentPool bounds concurrent worker activity for one project session.
type AgentPool struct {
	store     *store.Store
	projectID int64
	sem       *semaphore.Weighted

	mu      sync.Mutex
	members map[int64]*models.Agent // agent_id -> agent, idle or busy
}

// New builds an AgentPool capped at maxConcurrent simultaneously busy agents.
func New(st *store.Store, projectID int64, maxConcurrent int) *AgentPool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &AgentPool{
		store:     st,
		projectID: projectID,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		members:   make(map[int64]*models.Agent),
	}
}

// Lease represents one acquired concurrency slot, bound to one agent. The
// coordinator must call Release exactly once per successful Acquire.
type Lease struct {
	Agent *models.Agent
	pool  *AgentPool
}

// Acquire blocks until a concurrency slot is free, then returns an Idle
// agent of the given role — reusing one already in the pool if one exists,
// otherwise creating a new row (get_or_create). ctx cancellation
// unblocks a pending Acquire without consuming a slot.
func (p *AgentPool) Acquire(ctx context.Context, role models.Role) (*Lease, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("pool: acquire slot: %w", err)
	}

	agent, err := p.getOrCreate(ctx, role)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}

	if err := p.store.UpdateAgentStatus(ctx, agent.ID, models.AgentBusy, 0); err != nil {
		p.sem.Release(1)
		return nil, err
	}
	agent.Status = models.AgentBusy

	return &Lease{Agent: agent, pool: p}, nil
}

// TryAcquire is Acquire's non-blocking sibling: it returns ok=false
// immediately if no concurrency slot is free instead of waiting. The
// scheduling loop uses this to launch only as many tasks per tick as the
// pool currently has room for, leaving the rest for the next tick rather
// than blocking on a single slow Acquire.
func (p *AgentPool) TryAcquire(ctx context.Context, role models.Role) (*Lease, bool, error) {
	if !p.sem.TryAcquire(1) {
		return nil, false, nil
	}

	agent, err := p.getOrCreate(ctx, role)
	if err != nil {
		p.sem.Release(1)
		return nil, false, err
	}

	if err := p.store.UpdateAgentStatus(ctx, agent.ID, models.AgentBusy, 0); err != nil {
		p.sem.Release(1)
		return nil, false, err
	}
	agent.Status = models.AgentBusy

	return &Lease{Agent: agent, pool: p}, true, nil
}

func (p *AgentPool) getOrCreate(ctx context.Context, role models.Role) (*models.Agent, error) {
	p.mu.Lock()
	for _, a := range p.members {
		if a.Role == role && a.Status == models.AgentIdle {
			p.mu.Unlock()
			return a, nil
		}
	}
	p.mu.Unlock()

	agent, err := p.store.CreateAgent(ctx, p.projectID, role)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.members[agent.ID] = agent
	p.mu.Unlock()
	return agent, nil
}

// Release returns a lease's agent to Idle, resets its current task id to 0
// (the agent finished or abandoned its task), and frees its concurrency slot.
func (l *Lease) Release(ctx context.Context) error {
	defer l.pool.sem.Release(1)

	if err := l.pool.store.UpdateAgentStatus(ctx, l.Agent.ID, models.AgentIdle, 0); err != nil {
		return err
	}
	l.Agent.Status = models.AgentIdle

	l.pool.mu.Lock()
	l.pool.members[l.Agent.ID] = l.Agent
	l.pool.mu.Unlock()
	return nil
}

// Retire permanently removes an agent from the pool (it errored past
// recovery) and frees its concurrency slot without returning it to Idle.
func (l *Lease) Retire(ctx context.Context) error {
	defer l.pool.sem.Release(1)

	if err := l.pool.store.UpdateAgentStatus(ctx, l.Agent.ID, models.AgentStopped, 0); err != nil {
		return err
	}

	l.pool.mu.Lock()
	delete(l.pool.members, l.Agent.ID)
	l.pool.mu.Unlock()
	return nil
}

// Members returns a snapshot of every agent the pool currently tracks. The
// agents API lists agents through Store.ListAgents, not through this.
func (p *AgentPool) Members() []*models.Agent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.Agent, 0, len(p.members))
	for _, a := range p.members {
		out = append(out, a)
	}
	return out
}
