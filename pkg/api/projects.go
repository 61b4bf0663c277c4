package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frankbria/codeframe/pkg/models"
)

func pathProjectID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeErrorKind(c, http.StatusBadRequest, "Validation", "invalid project id")
		return 0, false
	}
	return id, true
}

func (h *handlers) createProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeValidationError(c, fieldErrors(err))
		return
	}

	sourceType := models.SourceType(req.SourceType)
	if sourceType == models.SourceLocalPath && !h.deps.Config.AllowsLocalPath() {
		writeErrorKind(c, http.StatusForbidden, "Forbidden", "hosted deployments forbid source_type=local_path")
		return
	}

	project, err := h.deps.Store.CreateProject(c.Request.Context(), models.Project{
		Name: req.Name, Description: req.Description, SourceType: sourceType,
		SourceLocation: req.SourceLocation, SourceBranch: req.SourceBranch,
		WorkspacePath: h.workspacePath(req.Name),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProjectDTO(project))
}

// workspacePath derives a project's on-disk workspace directory from its
// name and the configured workspaces root. Collisions across differently
// named projects are vanishingly unlikely at this scale; the project id
// becomes available only after the row is inserted, so it can't be used
// here.
func (h *handlers) workspacePath(name string) string {
	return h.deps.Config.WorkspacesRoot + "/" + sanitizeDirName(name)
}

func sanitizeDirName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "project"
	}
	return string(out)
}

func (h *handlers) listProjects(c *gin.Context) {
	projects, err := h.deps.Store.ListProjects(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	dtos := make([]ProjectDTO, 0, len(projects))
	for _, p := range projects {
		dtos = append(dtos, toProjectDTO(p))
	}
	c.JSON(http.StatusOK, gin.H{"projects": dtos})
}

func (h *handlers) getProject(c *gin.Context) {
	id, ok := pathProjectID(c)
	if !ok {
		return
	}
	project, err := h.deps.Store.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProjectDTO(project))
}
