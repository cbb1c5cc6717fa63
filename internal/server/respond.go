package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kwalsh/ticketyard/internal/depgraph"
	"github.com/kwalsh/ticketyard/internal/ticket"
	"github.com/kwalsh/ticketyard/internal/upload"
	"github.com/kwalsh/ticketyard/internal/workflow"
)

// errorBody is the standardized error response following the who-can-fix-it
// pattern: user-fixable conditions carry suggested corrective actions,
// system conditions are opaque.
type errorBody struct {
	Category        string   `json:"category"`
	Message         string   `json:"message"`
	RecoveryActions []string `json:"recovery_actions,omitempty"`
}

// fail maps a workflow error to an HTTP status and taxonomy category.
// User-fixable invariant violations are surfaced verbatim; anything else is
// an opaque internal failure.
func fail(c *gin.Context, err error) {
	var invalidTransition *workflow.InvalidTransitionError
	var circular *depgraph.CircularDependencyError

	switch {
	case errors.As(err, &invalidTransition):
		c.JSON(http.StatusConflict, errorBody{
			Category:        "user_fixable",
			Message:         err.Error(),
			RecoveryActions: []string{"Finish the current stage before moving on"},
		})
	case errors.As(err, &circular), errors.Is(err, depgraph.ErrSelfDependency):
		c.JSON(http.StatusUnprocessableEntity, errorBody{
			Category:        "user_fixable",
			Message:         err.Error(),
			RecoveryActions: []string{"Remove one of the conflicting dependencies"},
		})
	case errors.Is(err, workflow.ErrTaskAlreadyRunning):
		c.JSON(http.StatusConflict, errorBody{
			Category:        "user_fixable",
			Message:         err.Error(),
			RecoveryActions: []string{"Wait for the running task to finish"},
		})
	case errors.Is(err, workflow.ErrSessionNotFound),
		errors.Is(err, workflow.ErrTaskNotFound),
		errors.Is(err, ticket.ErrTicketNotFound),
		errors.Is(err, upload.ErrFileNotFound):
		c.JSON(http.StatusNotFound, errorBody{
			Category: "user_fixable",
			Message:  err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, errorBody{
			Category: "admin_required",
			Message:  "internal error",
		})
	}
}
