package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProviderReturnsScriptedResponses(t *testing.T) {
	m := NewMockProvider()
	m.Push(Response{Content: "hello"})
	m.PushError(NewError(ErrorRateLimited, "slow down", nil))

	resp, err := m.Complete(context.Background(), Request{Model: "test"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)

	_, err = m.Complete(context.Background(), Request{Model: "test"})
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.True(t, provErr.Retryable())

	assert.Len(t, m.Calls(), 2)
}

func TestErrorRetryableClassification(t *testing.T) {
	assert.True(t, NewError(ErrorRateLimited, "", nil).Retryable())
	assert.True(t, NewError(ErrorTimeout, "", nil).Retryable())
	assert.True(t, NewError(ErrorNetwork, "", nil).Retryable())
	assert.False(t, NewError(ErrorAuth, "", nil).Retryable())
	assert.False(t, NewError(ErrorProvider, "", nil).Retryable())
}

func TestDecompositionSchemaHasTasksProperty(t *testing.T) {
	schema, err := DecompositionSchema()
	require.NoError(t, err)
	assert.Contains(t, schema, "properties")
}

func TestParseDecompositionRoundTrips(t *testing.T) {
	result, err := ParseDecomposition(`{"tasks":[{"task_number":"T1","title":"scaffold","description":"set up the repo","depends_on":[]}]}`)
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, "T1", result.Tasks[0].TaskNumber)
}

func TestParseDecompositionRejectsInvalidJSON(t *testing.T) {
	_, err := ParseDecomposition("not json")
	assert.Error(t, err)
}
