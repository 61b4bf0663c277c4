// Package api implements the HTTP/WebSocket surface: a thin gin layer
// translating the command endpoints in the external interface table into
// calls against the Store, the Coordinator, and the CheckpointManager, and
// translating their typed errors back into the {error:{kind, message}}
// envelope. No business logic lives here — every handler is a request
// decode, a single call into the core, and a response encode.
package api

import (
	"time"

	"github.com/frankbria/codeframe/pkg/models"
)

// ProjectDTO is the wire shape of models.Project.
type ProjectDTO struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	SourceType     string    `json:"source_type"`
	SourceLocation string    `json:"source_location,omitempty"`
	SourceBranch   string    `json:"source_branch,omitempty"`
	WorkspacePath  string    `json:"workspace_path"`
	Phase          string    `json:"phase"`
	CurrentCommit  string    `json:"current_commit,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toProjectDTO(p *models.Project) ProjectDTO {
	return ProjectDTO{
		ID: p.ID, Name: p.Name, Description: p.Description, SourceType: string(p.SourceType),
		SourceLocation: p.SourceLocation, SourceBranch: p.SourceBranch, WorkspacePath: p.WorkspacePath,
		Phase: string(p.Phase), CurrentCommit: p.CurrentCommit, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Name           string `json:"name" validate:"required"`
	Description    string `json:"description"`
	SourceType     string `json:"source_type" validate:"required,oneof=git_remote local_path upload empty"`
	SourceLocation string `json:"source_location"`
	SourceBranch   string `json:"source_branch"`
}

// TaskDTO is the wire shape of models.Task.
type TaskDTO struct {
	ID                int64    `json:"id"`
	ProjectID         int64    `json:"project_id"`
	TaskNumber        string   `json:"task_number"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Status            string   `json:"status"`
	DependsOn         []int64  `json:"depends_on"`
	AssignedRole      string   `json:"assigned_role,omitempty"`
	AssignedAgentID   int64    `json:"assigned_agent_id,omitempty"`
	AttemptCount      int      `json:"attempt_count"`
	MaxAttempts       int      `json:"max_attempts"`
	QualityGateStatus string   `json:"quality_gate_status"`
	Artifacts         []string `json:"artifacts,omitempty"`
	Comment           string   `json:"comment,omitempty"`
}

func toTaskDTO(t *models.Task) TaskDTO {
	return TaskDTO{
		ID: t.ID, ProjectID: t.ProjectID, TaskNumber: t.TaskNumber, Title: t.Title, Description: t.Description,
		Status: string(t.Status), DependsOn: t.DependsOn, AssignedRole: t.AssignedRole, AssignedAgentID: t.AssignedAgentID,
		AttemptCount: t.AttemptCount, MaxAttempts: t.MaxAttempts, QualityGateStatus: string(t.QualityGateStatus),
		Artifacts: t.Artifacts, Comment: t.Comment,
	}
}

func toTaskDTOs(tasks []*models.Task) []TaskDTO {
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskDTO(t))
	}
	return out
}

// ApproveTasksRequest is the body of POST .../tasks/approve.
type ApproveTasksRequest struct {
	Approved        bool    `json:"approved"`
	ExcludedTaskIDs []int64 `json:"excluded_task_ids"`
}

// UnblockTaskRequest is the body of POST .../tasks/{id}/unblock.
type UnblockTaskRequest struct {
	Guidance string `json:"guidance"`
}

// AnswerDiscoveryRequest is the body of POST .../discovery/answer.
type AnswerDiscoveryRequest struct {
	Text string `json:"text" validate:"required"`
}

// AgentDTO is the wire shape of models.Agent.
type AgentDTO struct {
	ID             int64  `json:"id"`
	ProjectID      int64  `json:"project_id"`
	Role           string `json:"role"`
	Status         string `json:"status"`
	CurrentTaskID  int64  `json:"current_task_id,omitempty"`
	TotalTokensIn  int64  `json:"total_tokens_in"`
	TotalTokensOut int64  `json:"total_tokens_out"`
	TotalCostCents int64  `json:"total_cost_cents"`
}

func toAgentDTO(a *models.Agent) AgentDTO {
	return AgentDTO{
		ID: a.ID, ProjectID: a.ProjectID, Role: string(a.Role), Status: string(a.Status),
		CurrentTaskID: a.CurrentTaskID, TotalTokensIn: a.TotalTokensIn, TotalTokensOut: a.TotalTokensOut,
		TotalCostCents: a.TotalCostCents,
	}
}

func toAgentDTOs(agents []*models.Agent) []AgentDTO {
	out := make([]AgentDTO, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentDTO(a))
	}
	return out
}

// CheckpointDTO is the wire shape of models.Checkpoint.
type CheckpointDTO struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GitSHA      string    `json:"git_sha"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCheckpointDTO(cp *models.Checkpoint) CheckpointDTO {
	return CheckpointDTO{ID: cp.ID, ProjectID: cp.ProjectID, Name: cp.Name, Description: cp.Description,
		GitSHA: cp.GitSHA, CreatedAt: cp.CreatedAt}
}

func toCheckpointDTOs(cps []*models.Checkpoint) []CheckpointDTO {
	out := make([]CheckpointDTO, 0, len(cps))
	for _, cp := range cps {
		out = append(out, toCheckpointDTO(cp))
	}
	return out
}

// CreateCheckpointRequest is the body of POST .../checkpoints.
type CreateCheckpointRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}
