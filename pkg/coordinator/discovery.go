package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
	"github.com/frankbria/codeframe/pkg/store"
)

// DiscoveryAdvance is the result of one discovery step: either a new
// question to put in front of the client, or a signal that discovery
// concluded and PRD generation has been attempted.
type DiscoveryAdvance struct {
	Question  *models.DiscoveryQuestion
	Concluded bool
}

const discoverySystemPrompt = `You are the discovery agent for an autonomous software delivery team. Ask
one focused question at a time to understand what the client wants built. Once you have enough to
write a product requirements document, conclude instead of asking another question.`

// StartDiscovery asks the project's first discovery question. If discovery
// already has a pending question (e.g. a crashed client retried the
// request), that same question is returned rather than asking a new one.
func (c *Coordinator) StartDiscovery(ctx context.Context, projectID int64) (*DiscoveryAdvance, error) {
	project, err := c.st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	state, err := c.st.GetDiscoveryState(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if pq := state.PendingQuestion(); pq != nil {
		return &DiscoveryAdvance{Question: pq}, nil
	}
	return c.askNext(ctx, project, state)
}

// AnswerDiscoveryQuestion records the client's answer to the single pending
// question, then advances discovery: either another question or a
// conclusion (PRD generation).
func (c *Coordinator) AnswerDiscoveryQuestion(ctx context.Context, projectID int64, answer string) (*DiscoveryAdvance, error) {
	_, err := c.st.AnswerQuestion(ctx, projectID, answer)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrNoPendingQuestion
		}
		return nil, err
	}

	project, err := c.st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	state, err := c.st.GetDiscoveryState(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return c.askNext(ctx, project, state)
}

func (c *Coordinator) askNext(ctx context.Context, project *models.Project, state *models.DiscoveryState) (*DiscoveryAdvance, error) {
	if len(state.Questions) >= c.cfg.MaxDiscoveryQuestions {
		if err := c.concludeDiscovery(ctx, project); err != nil {
			return nil, err
		}
		return &DiscoveryAdvance{Concluded: true}, nil
	}

	step, err := c.evaluateDiscoveryStep(ctx, project, state)
	if err != nil {
		return nil, err
	}
	if step.Conclude {
		if err := c.concludeDiscovery(ctx, project); err != nil {
			return nil, err
		}
		return &DiscoveryAdvance{Concluded: true}, nil
	}

	q, err := c.st.AskQuestion(ctx, project.ID, step.Question)
	if err != nil {
		return nil, err
	}
	return &DiscoveryAdvance{Question: q}, nil
}

func (c *Coordinator) evaluateDiscoveryStep(ctx context.Context, project *models.Project, state *models.DiscoveryState) (*provider.DiscoveryStepResult, error) {
	var sb strings.Builder
	sb.WriteString("Project: ")
	sb.WriteString(project.Name)
	sb.WriteString("\nDescription: ")
	sb.WriteString(project.Description)
	sb.WriteString("\n\nQuestions asked so far:\n")
	if len(state.Questions) == 0 {
		sb.WriteString("(none yet — ask your first question)\n")
	}
	for _, q := range state.Questions {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", q.Text, q.Answer)
	}
	sb.WriteString("\nDecide: ask one more question, or conclude if you have enough to write the PRD.")

	schema, err := provider.DiscoveryStepSchema()
	if err != nil {
		return nil, err
	}
	resp, err := c.prov.Complete(ctx, provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: discoverySystemPrompt},
			{Role: provider.RoleUser, Content: sb.String()},
		},
		Model:          c.cfg.Model,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseSchema: schema,
	})
	if err != nil {
		return nil, err
	}
	return provider.ParseDiscoveryStep(resp.Content)
}

const prdSystemPrompt = `You are a product manager on an autonomous software delivery team. Write a
clear, structured product requirements document from the discovery Q&A transcript.`

// concludeDiscovery marks discovery completed, generates the PRD, and on
// success advances the project into planning.
func (c *Coordinator) concludeDiscovery(ctx context.Context, project *models.Project) error {
	if err := c.st.CompleteDiscovery(ctx, project.ID); err != nil {
		return err
	}
	if err := c.st.SetPRDStatus(ctx, project.ID, models.PRDGenerating, ""); err != nil {
		return err
	}

	state, err := c.st.GetDiscoveryState(ctx, project.ID)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("Project: ")
	sb.WriteString(project.Name)
	sb.WriteString("\nDescription: ")
	sb.WriteString(project.Description)
	sb.WriteString("\n\nDiscovery transcript:\n")
	for _, q := range state.Questions {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", q.Text, q.Answer)
	}

	resp, err := c.prov.Complete(ctx, provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: prdSystemPrompt},
			{Role: provider.RoleUser, Content: sb.String()},
		},
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		_ = c.st.SetPRDStatus(ctx, project.ID, models.PRDFailed, "")
		return err
	}

	if err := c.st.SetPRDStatus(ctx, project.ID, models.PRDAvailable, resp.Content); err != nil {
		return err
	}
	return c.st.TransitionProjectPhase(ctx, project.ID, models.PhaseDiscovery, models.PhasePlanning)
}
