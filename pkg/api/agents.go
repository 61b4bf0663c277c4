package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frankbria/codeframe/pkg/models"
)

func (h *handlers) listAgents(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	agents, err := h.deps.Store.ListAgents(c.Request.Context(), id, models.AgentStatus(""))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": toAgentDTOs(agents)})
}
