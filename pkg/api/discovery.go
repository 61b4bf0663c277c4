package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frankbria/codeframe/pkg/models"
)

func (h *handlers) discoveryProgress(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	project, err := h.deps.Store.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	state, err := h.deps.Store.GetDiscoveryState(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	discovery := gin.H{"state": string(state.State)}
	if pq := state.PendingQuestion(); pq != nil {
		discovery["current_question"] = gin.H{"id": pq.ID, "text": pq.Text}
	}

	prd := gin.H{"status": string(state.PRDStatus)}

	approved := project.Phase == models.PhaseActive || project.Phase == models.PhaseReview || project.Phase == models.PhaseComplete

	c.JSON(http.StatusOK, gin.H{
		"phase":     string(project.Phase),
		"discovery": discovery,
		"prd":       prd,
		"approved":  approved,
	})
}

func (h *handlers) discoveryAnswer(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	project, err := h.deps.Store.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if project.Phase != models.PhaseDiscovery {
		writeErrorKind(c, http.StatusConflict, "Conflict", "discovery.answer requires phase discovery")
		return
	}

	var req AnswerDiscoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeValidationError(c, fieldErrors(err))
		return
	}

	if _, err := h.deps.Coordinator.AnswerDiscoveryQuestion(c.Request.Context(), id, req.Text); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *handlers) generateTasks(c *gin.Context) {
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
		writeErrorKind(c, http.StatusConflict, "Conflict", "generate-tasks requires phase planning")
		return
	}

	// Decomposition calls the completion provider, which can take seconds;
	// run it in the background, outliving this request, and let clients
	// poll tasks.list for the result, matching the 202 contract.
	go func() {
		_, _ = h.deps.Coordinator.Decompose(context.Background(), id)
	}()
	c.Status(http.StatusAccepted)
}
