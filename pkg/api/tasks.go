package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frankbria/codeframe/pkg/coordinator"
	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/store"
)

func (h *handlers) listTasks(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	tasks, err := h.deps.Store.ListTasks(c.Request.Context(), id, store.TaskFilter{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks":  toTaskDTOs(tasks),
		"total":  len(tasks),
		"counts": models.CountTasks(tasks),
	})
}

func (h *handlers) approveTasks(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	project, err := h.deps.Store.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if project.Phase != models.PhasePlanning {
		writeErrorKind(c, http.StatusConflict, "Conflict", "tasks.approve requires phase planning")
		return
	}

	var req ApproveTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err.Error())
		return
	}

	result, err := h.deps.Coordinator.Approve(c.Request.Context(), id, req.ExcludedTaskIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"phase":          string(result.Phase),
		"approved_count": result.ApprovedCount,
		"excluded_count": result.ExcludedCount,
		"message":        approveMessage(result),
	})
}

func approveMessage(result *coordinator.ApprovalResult) string {
	if result.AlreadyApproved {
		return "decomposition was already approved"
	}
	return "decomposition approved"
}

func (h *handlers) unblockTask(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil {
		writeErrorKind(c, http.StatusBadRequest, "Validation", "invalid task id")
		return
	}

	project, err := h.deps.Store.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if project.Phase != models.PhaseActive {
		writeErrorKind(c, http.StatusConflict, "Conflict", "tasks.unblock requires phase active")
		return
	}

	var req UnblockTaskRequest
	_ = c.ShouldBindJSON(&req) // guidance is optional free text

	task, err := h.deps.Coordinator.UnblockTask(c.Request.Context(), id, taskID, req.Guidance)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskDTO(task))
}
