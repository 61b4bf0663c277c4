package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
	"github.com/frankbria/codeframe/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "codeframe.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestProject(t *testing.T, st *store.Store) *models.Project {
	t.Helper()
	p, err := st.CreateProject(context.Background(), models.Project{
		Name:          "demo",
		SourceType:    models.SourceEmpty,
		WorkspacePath: t.TempDir(),
	})
	require.NoError(t, err)
	return p
}

func newTestCoordinator(st *store.Store, prov provider.CompletionProvider) *Coordinator {
	return New(st, prov, Config{
		MaxConcurrentAgents:   2,
		MaxDiscoveryQuestions: 3,
		Model:                 "test-model",
		TickInterval:          5 * time.Millisecond,
	})
}

// reviewPassResponse scripts a clean review gate completion: a structured
// response with no findings, which the review gate and Report.Passed both
// read as a pass.
func reviewPassResponse() provider.Response {
	return provider.Response{Content: `{"findings":[]}`}
}

// artifactResponse builds a valid structured completion response for the
// backend/frontend/test strategies, which now require ArtifactResult JSON
// rather than free-text prose.
func artifactResponse(summary string, path, content string) provider.Response {
	return provider.Response{Content: fmt.Sprintf(
		`{"files":[{"path":%q,"content":%q}],"summary":%q}`, path, content, summary)}
}
