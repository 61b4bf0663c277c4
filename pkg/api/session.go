package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handlers) startSession(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	sess, err := h.deps.Coordinator.StartSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sess.ID, "status": string(sess.Status)})
}

func (h *handlers) pauseSession(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	if err := h.deps.Coordinator.PauseSession(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *handlers) resumeSession(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	if err := h.deps.Coordinator.ResumeSession(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *handlers) stopSession(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	if err := h.deps.Coordinator.StopSession(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
