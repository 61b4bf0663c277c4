package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frankbria/codeframe/pkg/models"
)

func (h *handlers) listCheckpoints(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	checkpoints, err := h.deps.Checkpoints.List(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoints": toCheckpointDTOs(checkpoints)})
}

func (h *handlers) createCheckpoint(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	project, err := h.deps.Store.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	var req CreateCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeValidationError(c, fieldErrors(err))
		return
	}

	cp, err := h.deps.Checkpoints.Create(c.Request.Context(), id, project.WorkspacePath, req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCheckpointDTO(cp))
}

func (h *handlers) pathCheckpoint(c *gin.Context, projectID int64) (*models.Checkpoint, bool) {
	checkpointID, err := strconv.ParseInt(c.Param("checkpoint_id"), 10, 64)
	if err != nil {
		writeErrorKind(c, http.StatusBadRequest, "Validation", "invalid checkpoint id")
		return nil, false
	}
	cp, err := h.deps.Store.GetCheckpoint(c.Request.Context(), checkpointID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if cp.ProjectID != projectID {
		writeErrorKind(c, http.StatusNotFound, "NotFound", "checkpoint not found")
		return nil, false
	}
	return cp, true
}

func (h *handlers) diffCheckpoint(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	project, err := h.deps.Store.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	cp, ok := h.pathCheckpoint(c, id)
	if !ok {
		return
	}
	diff, err := h.deps.Checkpoints.Diff(c.Request.Context(), project.WorkspacePath, cp)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoint_id": cp.ID, "diff": diff})
}

func (h *handlers) restoreCheckpoint(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	project, err := h.deps.Store.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if project.Phase == models.PhaseActive {
		writeErrorKind(c, http.StatusConflict, "Conflict", "checkpoints.restore is forbidden while the project is active")
		return
	}
	cp, ok := h.pathCheckpoint(c, id)
	if !ok {
		return
	}
	if err := h.deps.Checkpoints.Restore(c.Request.Context(), id, project.WorkspacePath, cp); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
