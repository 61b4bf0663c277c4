// Package quality implements the QualityGate executor: five fixed checks
// run against a completed task's artifacts — tests, coverage, type_check,
// and lint as external command gates, review as an LLM-backed gate via
// pkg/worker's review strategy. Gates run in fixed order. A failing command
// gate reports GateRunFailed but never skips what follows; only a critical
// finding from the review gate short-circuits the remaining gates, which are
// then recorded as skipped.
package quality

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
	"github.com/frankbria/codeframe/pkg/worker"
)

// CommandSet maps a command-backed gate to the shell command that runs it.
// A gate with no entry (or an empty command) is recorded as skipped rather
// than failed — a project that has no lint configuration, for instance,
// shouldn't be blocked by a lint gate it never opted into.
type CommandSet map[models.Gate]string

// Config configures a Runner.
type Config struct {
	Commands       CommandSet
	CommandTimeout time.Duration // per-gate command timeout, default 5 minutes
}

// Runner executes the five quality gates for one task.
type Runner struct {
	cfg         Config
	reviewAgent *worker.WorkerAgent
	prov        provider.CompletionProvider
}

// NewRunner builds a Runner. prov is the CompletionProvider the review gate
// calls; Run always executes the review gate, so prov must not be nil.
func NewRunner(cfg Config, prov provider.CompletionProvider) *Runner {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Minute
	}
	reviewAgent, err := worker.NewFactory().Build(models.RoleReview)
	if err != nil {
		// RoleReview is always registered by NewFactory; a build failure here
		// means the factory's strategy map was edited without updating this.
		panic(fmt.Sprintf("quality: build review agent: %v", err))
	}
	return &Runner{cfg: cfg, reviewAgent: reviewAgent, prov: prov}
}

// Report is the outcome of running every gate for one task.
type Report struct {
	Results []models.GateResult
	Passed  bool
}

// AllFindings flattens every finding across every gate in Report.Results.
func (r *Report) AllFindings() []models.QualityFinding {
	var out []models.QualityFinding
	for _, res := range r.Results {
		out = append(out, res.Findings...)
	}
	return out
}

// Run executes every gate in models.OrderedGates for task, whose workspace
// lives at workspacePath. A failing command gate (tests, coverage,
// type_check, lint) does not stop the run — every command gate and the
// review gate still execute. Execution stops accepting new gate runs only
// once the review gate reports a critical finding; every gate after that
// point is recorded with status skipped so the caller always gets one
// GateResult per gate.
func (r *Runner) Run(ctx context.Context, task *models.Task, workspacePath string) *Report {
	results := make([]models.GateResult, 0, len(models.OrderedGates))
	shortCircuited := false

	for _, gate := range models.OrderedGates {
		if shortCircuited {
			results = append(results, models.GateResult{Gate: gate, Status: models.GateRunSkipped})
			continue
		}

		var res models.GateResult
		if gate == models.GateReview {
			res = r.runReview(ctx, task)
		} else {
			res = r.runCommand(ctx, gate, workspacePath)
		}
		results = append(results, res)

		if gate == models.GateReview && hasCritical(res.Findings) {
			shortCircuited = true
		}
	}

	return &Report{Results: results, Passed: overallPassed(results)}
}

func hasCritical(findings []models.QualityFinding) bool {
	for _, f := range findings {
		if f.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}

func overallPassed(results []models.GateResult) bool {
	for _, res := range results {
		if res.Status == models.GateRunFailed {
			return false
		}
		if hasCritical(res.Findings) {
			return false
		}
	}
	return true
}

// runCommand runs gate's configured shell command inside workspacePath and
// classifies the result by exit code. A gate with no configured command is
// skipped, not failed.
func (r *Runner) runCommand(ctx context.Context, gate models.Gate, workspacePath string) models.GateResult {
	cmdStr := r.cfg.Commands[gate]
	if cmdStr == "" {
		return models.GateResult{Gate: gate, Status: models.GateRunSkipped}
	}

	cctx, cancel := context.WithTimeout(ctx, r.cfg.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", cmdStr)
	cmd.Dir = workspacePath

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		return models.GateResult{
			Gate:       gate,
			Status:     models.GateRunFailed,
			DurationMS: duration.Milliseconds(),
			Findings: []models.QualityFinding{{
				Gate:     gate,
				Severity: models.SeverityCritical,
				Message:  fmt.Sprintf("%q failed: %v\n%s", cmdStr, err, truncate(out.String(), 4000)),
			}},
		}
	}

	return models.GateResult{Gate: gate, Status: models.GateRunPassed, DurationMS: duration.Milliseconds()}
}

// runReview calls the review worker agent and parses its structured
// findings. A malformed or failed completion is itself a high-severity
// finding rather than a silent pass — the review gate only reads as
// genuinely clean when the model actually reports zero findings.
func (r *Runner) runReview(ctx context.Context, task *models.Task) models.GateResult {
	start := time.Now()
	outcome := r.reviewAgent.Execute(ctx, r.prov, worker.TaskContext{Task: task})
	duration := time.Since(start)

	if outcome.Status != worker.OutcomeCompleted {
		return models.GateResult{
			Gate:       models.GateReview,
			Status:     models.GateRunFailed,
			DurationMS: duration.Milliseconds(),
			Findings: []models.QualityFinding{{
				Gate:     models.GateReview,
				Severity: models.SeverityHigh,
				Message:  fmt.Sprintf("review completion did not succeed: %s", outcome.Comment),
			}},
		}
	}

	parsed, err := provider.ParseReview(outcome.Comment)
	if err != nil {
		return models.GateResult{
			Gate:       models.GateReview,
			Status:     models.GateRunFailed,
			DurationMS: duration.Milliseconds(),
			Findings: []models.QualityFinding{{
				Gate:     models.GateReview,
				Severity: models.SeverityHigh,
				Message:  fmt.Sprintf("review response was not valid structured output: %v", err),
			}},
		}
	}

	findings := make([]models.QualityFinding, 0, len(parsed.Findings))
	for _, f := range parsed.Findings {
		findings = append(findings, models.QualityFinding{
			Gate:           models.GateReview,
			Severity:       models.Severity(f.Severity),
			File:           f.File,
			Line:           f.Line,
			Message:        f.Message,
			Recommendation: f.Recommendation,
		})
	}

	// Gate status reflects whether the review call itself succeeded, not the
	// severity of what it found — a clean completion that reports a
	// non-critical finding still "passed" the review gate; Report.Passed is
	// computed separately from finding severity across all gates.
	return models.GateResult{Gate: models.GateReview, Status: models.GateRunPassed, Findings: findings, DurationMS: duration.Milliseconds()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
