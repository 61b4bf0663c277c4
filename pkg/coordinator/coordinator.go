// Package coordinator implements the SessionCoordinator: the per-project
// orchestrator tying together the phase state machine, the discovery Q&A
// loop, PRD generation, task decomposition, and the multi-agent scheduling
// loop that drives tasks from ready to completed. It is the one component
// that calls every other package — store, graph, assign, pool, worker, and
// quality — in the sequence the product description calls for.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/pool"
	"github.com/frankbria/codeframe/pkg/provider"
	"github.com/frankbria/codeframe/pkg/quality"
	"github.com/frankbria/codeframe/pkg/store"
	"github.com/frankbria/codeframe/pkg/worker"
)

// Config tunes the coordinator's scheduling and discovery behavior.
type Config struct {
	MaxConcurrentAgents  int
	MaxDiscoveryQuestions int // default 12
	Model                 string
	MaxTokens             int
	TaskTimeout           time.Duration // per-task execution deadline, default 10m
	TickInterval          time.Duration // idle poll interval when nothing just completed, default 2s
	QualityCommands       quality.CommandSet
	WatchdogMax           int           // consecutive no-progress ticks before session.failed(watchdog), default 1000
	SessionTimeout        time.Duration // wall-clock cap on a session's lifetime, default 2h
}

func (c *Config) setDefaults() {
	if c.MaxConcurrentAgents <= 0 {
		c.MaxConcurrentAgents = 5
	}
	if c.MaxDiscoveryQuestions <= 0 {
		c.MaxDiscoveryQuestions = 12
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 10 * time.Minute
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 2 * time.Second
	}
	if c.WatchdogMax <= 0 {
		c.WatchdogMax = 1000
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 2 * time.Hour
	}
}

// Coordinator orchestrates every project it's asked to manage. One
// Coordinator is shared process-wide; per-project state (the running
// session, its pool) lives in the sessions map, keyed by project id.
type Coordinator struct {
	st   *store.Store
	prov provider.CompletionProvider
	cfg  Config

	factory *worker.Factory
	qrunner *quality.Runner

	mu       sync.Mutex
	sessions map[int64]*runningSession

	warnings *warningsRegistry
}

// New builds a Coordinator. prov is the CompletionProvider used for every
// discovery, PRD, decomposition, and worker completion call.
func New(st *store.Store, prov provider.CompletionProvider, cfg Config) *Coordinator {
	cfg.setDefaults()
	return &Coordinator{
		st:       st,
		prov:     prov,
		cfg:      cfg,
		factory:  worker.NewFactory(),
		qrunner:  quality.NewRunner(quality.Config{Commands: cfg.QualityCommands}, prov),
		sessions: make(map[int64]*runningSession),
		warnings: newWarningsRegistry(),
	}
}

// runningSession tracks one project's in-flight execution loop.
type runningSession struct {
	sessionID   int64
	startedAt   time.Time
	pool        *pool.AgentPool
	cancel      context.CancelFunc
	done        chan struct{}
	completions chan taskResult

	mu     sync.Mutex
	paused bool
}

func (c *Coordinator) getSession(projectID int64) (*runningSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.sessions[projectID]
	return rs, ok
}

// prdExcerpt returns the stored PRD content, truncated to a size reasonable
// for inclusion in a worker prompt's context window budget.
func prdExcerpt(content string) string {
	const maxLen = 6000
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "\n...(truncated)"
}

// taskContextFor builds the worker.TaskContext a strategy needs to execute
// one task.
func (c *Coordinator) taskContextFor(project *models.Project, prd string, task *models.Task) worker.TaskContext {
	return worker.TaskContext{
		Task:          task,
		ProjectName:   project.Name,
		WorkspacePath: project.WorkspacePath,
		PRDExcerpt:    prdExcerpt(prd),
		Model:         c.cfg.Model,
		MaxTokens:     c.cfg.MaxTokens,
	}
}
