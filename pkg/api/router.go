package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frankbria/codeframe/pkg/checkpoint"
	"github.com/frankbria/codeframe/pkg/config"
	"github.com/frankbria/codeframe/pkg/coordinator"
	"github.com/frankbria/codeframe/pkg/eventbus"
	"github.com/frankbria/codeframe/pkg/store"
)

// Deps bundles everything a handler needs to serve a request. One Deps is
// built at process startup and shared across every request.
type Deps struct {
	Store       *store.Store
	Coordinator *coordinator.Coordinator
	Checkpoints *checkpoint.Manager
	Bus         *eventbus.Bus
	Config      *config.Config
	Verifier    TokenVerifier
}

// NewRouter wires every route in the external interface table onto a gin
// engine. The health endpoints and the process-level /metrics endpoint are
// unauthenticated; /ws checks its own query-param token (see ws.go); every
// /api route requires a bearer token.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ws/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ready"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) { serveWebSocket(c, deps) })

	h := &handlers{deps: deps}

	api := r.Group("/api", requireAuth(deps.Verifier))
	api.POST("/projects", h.createProject)
	api.GET("/projects", h.listProjects)
	api.GET("/projects/:id", h.getProject)

	api.GET("/projects/:id/discovery/progress", h.discoveryProgress)
	api.POST("/projects/:id/discovery/answer", h.discoveryAnswer)
	api.POST("/projects/:id/discovery/generate-tasks", h.generateTasks)

	api.GET("/projects/:id/tasks", h.listTasks)
	api.POST("/projects/:id/tasks/approve", h.approveTasks)
	api.POST("/projects/:id/tasks/:task_id/unblock", h.unblockTask)

	api.GET("/projects/:id/agents", h.listAgents)
	api.GET("/projects/:id/metrics", h.getMetrics)

	api.GET("/projects/:id/checkpoints", h.listCheckpoints)
	api.POST("/projects/:id/checkpoints", h.createCheckpoint)
	api.GET("/projects/:id/checkpoints/:checkpoint_id/diff", h.diffCheckpoint)
	api.POST("/projects/:id/checkpoints/:checkpoint_id/restore", h.restoreCheckpoint)

	api.POST("/projects/:id/session/start", h.startSession)
	api.POST("/projects/:id/session/pause", h.pauseSession)
	api.POST("/projects/:id/session/resume", h.resumeSession)
	api.POST("/projects/:id/session/stop", h.stopSession)

	return r
}

type handlers struct {
	deps Deps
}
