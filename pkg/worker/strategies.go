package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/frankbria/codeframe/pkg/provider"
)

// buildTaskMessages composes the system+user message pair every strategy
// sends to the CompletionProvider: role framing as the system message, then
// a user message built from project/workspace context, the relevant PRD
// excerpt, the task's own title and description, and a closing instruction.
func buildTaskMessages(roleSystemPrompt, closingInstruction string, tc TaskContext) []provider.Message {
	var sb strings.Builder
	sb.WriteString("Project: ")
	sb.WriteString(tc.ProjectName)
	sb.WriteString("\nWorkspace: ")
	sb.WriteString(tc.WorkspacePath)
	sb.WriteString("\n\n")

	if tc.PRDExcerpt != "" {
		sb.WriteString("Relevant product requirements:\n")
		sb.WriteString(tc.PRDExcerpt)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Task ")
	sb.WriteString(tc.Task.TaskNumber)
	sb.WriteString(": ")
	sb.WriteString(tc.Task.Title)
	sb.WriteString("\n\n")
	sb.WriteString(tc.Task.Description)
	sb.WriteString("\n\n")
	sb.WriteString(closingInstruction)

	return []provider.Message{
		{Role: provider.RoleSystem, Content: roleSystemPrompt},
		{Role: provider.RoleUser, Content: sb.String()},
	}
}

// completeAndApply drives a backend/frontend/test completion call: the
// model is constrained to ArtifactSchema, and every returned file is staged
// then flushed into the task's workspace before the outcome is reported
// completed. Artifacts on the returned Outcome are the paths actually
// written, not just the task number.
func completeAndApply(ctx context.Context, prov provider.CompletionProvider, tc TaskContext, messages []provider.Message) (*Outcome, error) {
	schema, err := provider.ArtifactSchema()
	if err != nil {
		return nil, err
	}
	resp, err := prov.Complete(ctx, provider.Request{
		Messages:       messages,
		Model:          tc.Model,
		MaxTokens:      tc.MaxTokens,
		ResponseSchema: schema,
	})
	if err != nil {
		return nil, err
	}
	result, err := provider.ParseArtifacts(resp.Content)
	if err != nil {
		return nil, err
	}
	written, err := applyArtifacts(tc.WorkspacePath, result.Files)
	if err != nil {
		return nil, err
	}
	comment := result.Summary
	if comment == "" {
		comment = resp.Content
	}
	return &Outcome{
		Status:    OutcomeCompleted,
		Artifacts: written,
		Comment:   comment,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
	}, nil
}

// completeWithSchema drives a schema-constrained completion call whose
// result is itself the outcome (a verdict, not file content) — used by the
// review strategy, whose Comment is parsed by pkg/quality rather than
// staged into the workspace.
func completeWithSchema(ctx context.Context, prov provider.CompletionProvider, tc TaskContext, messages []provider.Message, schema map[string]any) (*Outcome, error) {
	resp, err := prov.Complete(ctx, provider.Request{
		Messages:       messages,
		Model:          tc.Model,
		MaxTokens:      tc.MaxTokens,
		ResponseSchema: schema,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Status:    OutcomeCompleted,
		Comment:   resp.Content,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
	}, nil
}

// applyArtifacts stages each returned file under a temp name in its
// destination directory, flushes it to disk, then renames it into place —
// rename(2) is atomic on the same filesystem, so a concurrent reader (or a
// checkpoint taken mid-write) never observes a half-written file.
func applyArtifacts(workspacePath string, files []provider.ArtifactFile) ([]string, error) {
	written := make([]string, 0, len(files))
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		dest, err := safeJoin(workspacePath, f.Path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", f.Path, err)
		}

		tmp, err := os.CreateTemp(filepath.Dir(dest), ".codeframe-*.tmp")
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", f.Path, err)
		}
		if _, err := tmp.WriteString(f.Content); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("write staged %s: %w", f.Path, err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("flush staged %s: %w", f.Path, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("close staged %s: %w", f.Path, err)
		}
		if err := os.Rename(tmp.Name(), dest); err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("apply staged %s: %w", f.Path, err)
		}
		written = append(written, f.Path)
	}
	return written, nil
}

// safeJoin resolves rel against root, rejecting any path that, once
// cleaned, would land outside the workspace (e.g. via leading ".."
// segments). An absolute rel is joined under root rather than rejected;
// symlinks are not resolved.
func safeJoin(root, rel string) (string, error) {
	rootClean := filepath.Clean(root)
	joined := filepath.Clean(filepath.Join(rootClean, rel))
	if joined != rootClean && !strings.HasPrefix(joined, rootClean+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path %q escapes workspace", rel)
	}
	return joined, nil
}

const backendSystemPrompt = `You are the backend engineering agent on an autonomous software delivery team.
Implement server-side logic, data models, and APIs for the assigned task. Write idiomatic,
tested code and return every file you touch in full.`

// BackendStrategy handles server-side implementation tasks.
type BackendStrategy struct{}

func (BackendStrategy) Execute(ctx context.Context, prov provider.CompletionProvider, tc TaskContext) (*Outcome, error) {
	messages := buildTaskMessages(backendSystemPrompt,
		"Implement this task now. Return every file you created or modified as a full file body.", tc)
	return completeAndApply(ctx, prov, tc, messages)
}

const frontendSystemPrompt = `You are the frontend engineering agent on an autonomous software delivery team.
Implement UI components, client-side state, and user interactions for the assigned task.
Write idiomatic, tested code and return every file you touch in full.`

// FrontendStrategy handles client-side implementation tasks.
type FrontendStrategy struct{}

func (FrontendStrategy) Execute(ctx context.Context, prov provider.CompletionProvider, tc TaskContext) (*Outcome, error) {
	messages := buildTaskMessages(frontendSystemPrompt,
		"Implement this task now. Return every file you created or modified as a full file body.", tc)
	return completeAndApply(ctx, prov, tc, messages)
}

const testSystemPrompt = `You are the test engineering agent on an autonomous software delivery team.
Write automated tests — unit, integration, or end-to-end as the task requires — that exercise
the behavior described. Favor realistic coverage over exhaustive marshal/unmarshal grids.`

// TestStrategy handles test-authoring tasks.
type TestStrategy struct{}

func (TestStrategy) Execute(ctx context.Context, prov provider.CompletionProvider, tc TaskContext) (*Outcome, error) {
	messages := buildTaskMessages(testSystemPrompt,
		"Write the tests this task calls for now. Return every test file you created or modified as a full file body.", tc)
	return completeAndApply(ctx, prov, tc, messages)
}

const reviewSystemPrompt = `You are the review agent on an autonomous software delivery team, the final quality
gate before a task is accepted. Examine the artifacts produced for this task and report concrete
findings. Flag anything that would break correctness or security as critical — a critical finding
halts the remaining quality gates for this task.`

// ReviewStrategy handles the review quality gate's completion call. Unlike
// the other three, its "artifact" is itself a verdict consumed by
// pkg/quality rather than source code — pkg/quality parses Outcome.Comment
// for structured findings.
type ReviewStrategy struct{}

func (ReviewStrategy) Execute(ctx context.Context, prov provider.CompletionProvider, tc TaskContext) (*Outcome, error) {
	messages := buildTaskMessages(reviewSystemPrompt,
		"Review the artifacts for this task and report every finding, however minor.", tc)
	schema, err := provider.ReviewSchema()
	if err != nil {
		return nil, err
	}
	return completeWithSchema(ctx, prov, tc, messages, schema)
}
