package provider

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// DecompositionTask is the shape a decomposition completion must return for
// each task. Struct tags double as the jsonschema source so the schema sent
// to the model and the struct parsed from its response never drift apart.
type DecompositionTask struct {
	TaskNumber  string   `json:"task_number" jsonschema:"required,description=Stable identifier like T1\\, T2"`
	Title       string   `json:"title" jsonschema:"required"`
	Description string   `json:"description" jsonschema:"required"`
	DependsOn   []string `json:"depends_on,omitempty" jsonschema:"description=task_numbers this task requires to complete first"`
}

// DecompositionResult is the top-level completion response shape.
type DecompositionResult struct {
	Tasks []DecompositionTask `json:"tasks" jsonschema:"required"`
}

// DecompositionSchema renders the JSON schema for DecompositionResult,
// suitable for inclusion in a completion request's tool/response-format
// parameter so the model is constrained to return well-shaped JSON.
func DecompositionSchema() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&DecompositionResult{})

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// ParseDecomposition validates and decodes a completion's raw JSON content
// against DecompositionResult's shape. It does not validate graph
// properties (cycles, dangling references) — that's pkg/graph's job once
// task_numbers are resolved.
func ParseDecomposition(content string) (*DecompositionResult, error) {
	var result DecompositionResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, NewError(ErrorProvider, "decomposition response was not valid JSON", err)
	}
	return &result, nil
}

// ReviewFinding is one issue the review gate's completion call reports.
type ReviewFinding struct {
	Severity       string `json:"severity" jsonschema:"required,description=one of critical\\, high\\, medium\\, low\\, info"`
	File           string `json:"file,omitempty"`
	Line           int    `json:"line,omitempty"`
	Message        string `json:"message" jsonschema:"required"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ReviewResult is the top-level shape a review gate completion must return.
type ReviewResult struct {
	Findings []ReviewFinding `json:"findings"`
}

// ReviewSchema renders the JSON schema for ReviewResult, the same way
// DecompositionSchema does for task decomposition.
func ReviewSchema() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&ReviewResult{})

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// ParseReview validates and decodes a completion's raw JSON content against
// ReviewResult's shape.
func ParseReview(content string) (*ReviewResult, error) {
	var result ReviewResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, NewError(ErrorProvider, "review response was not valid JSON", err)
	}
	return &result, nil
}

// ArtifactFile is one file a worker strategy writes into the task's
// workspace, carried as structured completion output so the exact bytes to
// stage never have to be scraped out of free-text prose.
type ArtifactFile struct {
	Path    string `json:"path" jsonschema:"required,description=file path relative to the workspace root"`
	Content string `json:"content" jsonschema:"required,description=the complete contents to write for this file"`
}

// ArtifactResult is the top-level shape a backend/frontend/test completion
// call must return: every file it created or modified, plus a short prose
// summary suitable for the task's comment.
type ArtifactResult struct {
	Files   []ArtifactFile `json:"files" jsonschema:"required"`
	Summary string         `json:"summary,omitempty" jsonschema:"description=a short human-readable summary of the change"`
}

// ArtifactSchema renders the JSON schema for ArtifactResult, the same way
// DecompositionSchema does for task decomposition.
func ArtifactSchema() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&ArtifactResult{})

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// ParseArtifacts validates and decodes a completion's raw JSON content
// against ArtifactResult's shape.
func ParseArtifacts(content string) (*ArtifactResult, error) {
	var result ArtifactResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, NewError(ErrorProvider, "artifact response was not valid JSON", err)
	}
	return &result, nil
}

// DiscoveryStepResult is what the discovery evaluator's completion call
// returns each turn: either one more question to ask, or a signal that
// enough has been learned to generate the PRD.
type DiscoveryStepResult struct {
	Conclude bool   `json:"conclude" jsonschema:"required,description=true once enough has been learned to write the PRD"`
	Question string `json:"question,omitempty" jsonschema:"description=the next question to ask\\, required unless conclude is true"`
}

// DiscoveryStepSchema renders the JSON schema for DiscoveryStepResult.
func DiscoveryStepSchema() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&DiscoveryStepResult{})

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// ParseDiscoveryStep validates and decodes a completion's raw JSON content
// against DiscoveryStepResult's shape.
func ParseDiscoveryStep(content string) (*DiscoveryStepResult, error) {
	var result DiscoveryStepResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, NewError(ErrorProvider, "discovery step response was not valid JSON", err)
	}
	return &result, nil
}
