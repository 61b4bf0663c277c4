package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// gitRunner shells out to a git binary resolved once at construction, inside
// a fixed workspace directory. Every argument list is built from fixed verbs
// plus caller-supplied revision/path strings — never passed through a
// shell — so there is no command injection surface even though the SHAs and
// names involved originate from stored, user-supplied checkpoint rows.
type gitRunner struct {
	workspacePath string
	gitPath       string
	timeout       time.Duration
}

func newGitRunner(workspacePath string) (*gitRunner, error) {
	absPath, err := filepath.Abs(workspacePath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: resolve workspace path: %w", err)
	}
	gitPath, err := resolveGitBinary(absPath)
	if err != nil {
		return nil, err
	}
	return &gitRunner{workspacePath: absPath, gitPath: gitPath, timeout: 30 * time.Second}, nil
}

func (g *gitRunner) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	cmd.Dir = g.workspacePath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("checkpoint: git %s timed out", strings.Join(args, " "))
		}
		return "", fmt.Errorf("checkpoint: git %s: %s: %w", strings.Join(args, " "), stderr.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// resolveGitBinary finds git on PATH and refuses to run a binary that lives
// inside the workspace itself, guarding against a PATH that includes the
// repo (or a malicious file dropped into it named "git").
func resolveGitBinary(workspaceAbs string) (string, error) {
	p, err := exec.LookPath("git")
	if err != nil {
		return "", fmt.Errorf("checkpoint: git not found in PATH: %w", err)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("checkpoint: resolve git path: %w", err)
	}
	real := abs
	if rr, err := filepath.EvalSymlinks(abs); err == nil {
		real = rr
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("checkpoint: stat git binary: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("checkpoint: git binary is not a regular file: %s", real)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return "", fmt.Errorf("checkpoint: git binary is not executable: %s", real)
	}
	if isWithin(workspaceAbs, real) {
		return "", fmt.Errorf("checkpoint: refusing to execute git from within workspace: %s", real)
	}
	return real, nil
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// ensureInitialized makes sure the workspace is a git repository, running
// `git init` and an empty initial commit if it isn't yet. A freshly created
// empty-source project has no commits to checkpoint otherwise.
func (g *gitRunner) ensureInitialized(ctx context.Context) error {
	if _, err := g.run(ctx, "rev-parse", "--git-dir"); err == nil {
		return nil
	}
	if _, err := g.run(ctx, "init"); err != nil {
		return err
	}
	if _, err := g.run(ctx, "config", "user.email", "agents@codeframe.local"); err != nil {
		return err
	}
	if _, err := g.run(ctx, "config", "user.name", "codeframe"); err != nil {
		return err
	}
	if _, err := g.run(ctx, "commit", "--allow-empty", "-m", "initial workspace"); err != nil {
		return err
	}
	return nil
}

// commitAll stages every change in the workspace and commits it, returning
// the resulting SHA. The commit is made with --allow-empty, so even with
// nothing to commit a new (empty) commit is created and its SHA returned.
func (g *gitRunner) commitAll(ctx context.Context, message string) (string, error) {
	if err := g.ensureInitialized(ctx); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "commit", "--allow-empty", "-m", message); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}

func (g *gitRunner) headSHA(ctx context.Context) (string, error) {
	if err := g.ensureInitialized(ctx); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}

func (g *gitRunner) diff(ctx context.Context, sha string) (string, error) {
	if err := validateRev(sha); err != nil {
		return "", err
	}
	return g.run(ctx, "diff", sha, "HEAD")
}

// restore resets the working tree to sha and removes anything untracked,
// discarding all work done since that checkpoint.
func (g *gitRunner) restore(ctx context.Context, sha string) error {
	if err := validateRev(sha); err != nil {
		return err
	}
	if _, err := g.run(ctx, "reset", "--hard", sha); err != nil {
		return err
	}
	_, err := g.run(ctx, "clean", "-fd")
	return err
}

func validateRev(rev string) error {
	if rev == "" {
		return fmt.Errorf("checkpoint: empty revision")
	}
	if strings.HasPrefix(rev, "-") {
		return fmt.Errorf("checkpoint: revision must not start with '-'")
	}
	if strings.ContainsAny(rev, " \t\n\r") {
		return fmt.Errorf("checkpoint: revision must not contain whitespace")
	}
	return nil
}
