package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
)

func TestStartDiscoveryAsksFirstQuestion(t *testing.T) {
	st := newTestStore(t)
	p := newTestProject(t, st)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{Content: `{"conclude":false,"question":"Who are the primary users?"}`})

	c := newTestCoordinator(st, mock)
	adv, err := c.StartDiscovery(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, adv.Question)
	assert.Equal(t, "Who are the primary users?", adv.Question.Text)
}

func TestStartDiscoveryReturnsExistingPendingQuestion(t *testing.T) {
	st := newTestStore(t)
	p := newTestProject(t, st)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{Content: `{"conclude":false,"question":"Who are the primary users?"}`})

	c := newTestCoordinator(st, mock)
	first, err := c.StartDiscovery(context.Background(), p.ID)
	require.NoError(t, err)

	// Second call must not consume another scripted response — the mock
	// provider would error if Complete were called again with nothing queued.
	second, err := c.StartDiscovery(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Question.ID, second.Question.ID)
}

func TestAnswerDiscoveryQuestionAdvancesToNextQuestion(t *testing.T) {
	st := newTestStore(t)
	p := newTestProject(t, st)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{Content: `{"conclude":false,"question":"Who are the primary users?"}`})
	mock.Push(provider.Response{Content: `{"conclude":false,"question":"What's the core workflow?"}`})

	c := newTestCoordinator(st, mock)
	_, err := c.StartDiscovery(context.Background(), p.ID)
	require.NoError(t, err)

	adv, err := c.AnswerDiscoveryQuestion(context.Background(), p.ID, "Small business owners")
	require.NoError(t, err)
	require.NotNil(t, adv.Question)
	assert.Equal(t, "What's the core workflow?", adv.Question.Text)
}

func TestAnswerDiscoveryQuestionWithoutPendingQuestionFails(t *testing.T) {
	st := newTestStore(t)
	p := newTestProject(t, st)

	mock := provider.NewMockProvider()
	c := newTestCoordinator(st, mock)

	_, err := c.AnswerDiscoveryQuestion(context.Background(), p.ID, "no question was asked")
	assert.ErrorIs(t, err, ErrNoPendingQuestion)
}

func TestAnswerDiscoveryQuestionConcludesAndGeneratesPRD(t *testing.T) {
	st := newTestStore(t)
	p := newTestProject(t, st)

	mock := provider.NewMockProvider()
	mock.Push(provider.Response{Content: `{"conclude":false,"question":"Who are the primary users?"}`})
	mock.Push(provider.Response{Content: `{"conclude":true}`})
	mock.Push(provider.Response{Content: "# Product Requirements\n\nBuild a thing."})

	c := newTestCoordinator(st, mock)
	_, err := c.StartDiscovery(context.Background(), p.ID)
	require.NoError(t, err)

	adv, err := c.AnswerDiscoveryQuestion(context.Background(), p.ID, "Small business owners")
	require.NoError(t, err)
	assert.True(t, adv.Concluded)

	state, err := st.GetDiscoveryState(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PRDAvailable, state.PRDStatus)
	assert.Contains(t, state.PRDContent, "Build a thing")

	updated, err := st.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhasePlanning, updated.Phase)
}

func TestDiscoveryConcludesAfterMaxQuestions(t *testing.T) {
	st := newTestStore(t)
	p := newTestProject(t, st)

	mock := provider.NewMockProvider()
	// Config caps discovery at 3 questions; Q1–Q3 are asked and the first two
	// answered here, so the third Answer call hits the max-questions path and
	// concludes without consulting the evaluator again.
	mock.Push(provider.Response{Content: `{"conclude":false,"question":"Q1"}`})
	mock.Push(provider.Response{Content: `{"conclude":false,"question":"Q2"}`})
	mock.Push(provider.Response{Content: `{"conclude":false,"question":"Q3"}`})
	mock.Push(provider.Response{Content: "PRD content"})

	c := newTestCoordinator(st, mock)
	_, err := c.StartDiscovery(context.Background(), p.ID)
	require.NoError(t, err)
	_, err = c.AnswerDiscoveryQuestion(context.Background(), p.ID, "a1")
	require.NoError(t, err)
	_, err = c.AnswerDiscoveryQuestion(context.Background(), p.ID, "a2")
	require.NoError(t, err)

	adv, err := c.AnswerDiscoveryQuestion(context.Background(), p.ID, "a3")
	require.NoError(t, err)
	assert.True(t, adv.Concluded)
}
