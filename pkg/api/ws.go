package api

import (
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// serveWebSocket upgrades GET /ws?project_id=...&token=... and hands the
// connection to the event bus. The query-param token (rather than a
// header) is used because a browser's native WebSocket client cannot set
// Authorization on the upgrade request.
func serveWebSocket(c *gin.Context, deps Deps) {
	projectID, err := strconv.ParseInt(c.Query("project_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorEnvelope{Kind: "Validation", Message: "project_id is required"}})
		return
	}

	principal, err := deps.Verifier.Verify(c.Request.Context(), c.Query("token"))
	if err != nil || principal == nil {
		conn, acceptErr := websocket.Accept(c.Writer, c.Request, nil)
		if acceptErr != nil {
			return
		}
		_ = conn.Close(websocket.StatusPolicyViolation, "authentication rejected")
		return
	}

	deps.Bus.ServeProjectStream(c.Writer, c.Request, projectID)
}
