package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frankbria/codeframe/pkg/checkpoint"
	"github.com/frankbria/codeframe/pkg/coordinator"
	"github.com/frankbria/codeframe/pkg/store"
)

// errorEnvelope is the {error:{kind, message, details?}} body every
// non-2xx response uses.
type errorEnvelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeErrorKind(c *gin.Context, status int, kind, message string) {
	c.JSON(status, gin.H{"error": errorEnvelope{Kind: kind, Message: message}})
}

func writeValidationError(c *gin.Context, details any) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errorEnvelope{
		Kind: "Validation", Message: "request body failed validation", Details: details,
	}})
}

// writeError classifies err against the store/coordinator/checkpoint
// sentinel kinds and writes the matching status + envelope. Anything
// unrecognized is a 500 Persistence error — the coordinator's own policy
// is to fail the session rather than leak internal error text to clients.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrorKind(c, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, checkpoint.ErrActiveSession),
		errors.Is(err, coordinator.ErrAlreadyApproved),
		errors.Is(err, coordinator.ErrNoPendingQuestion),
		errors.Is(err, coordinator.ErrSessionNotRunning),
		errors.Is(err, coordinator.ErrSessionAlreadyRunning),
		errors.Is(err, coordinator.ErrTaskNotBlocked):
		writeErrorKind(c, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, coordinator.ErrCyclicDecomposition):
		writeErrorKind(c, http.StatusUnprocessableEntity, "Cyclic", err.Error())
	default:
		writeErrorKind(c, http.StatusInternalServerError, "Persistence", "internal error")
	}
}
