// Package workflow implements the session stage machine, the per-session
// background task slot, and the export-readiness validation lifecycle.
package workflow

import (
	"errors"
	"fmt"

	"github.com/kwalsh/ticketyard/internal/models"
)

// ErrTaskAlreadyRunning is returned by StartTask when the session's task slot
// is occupied by a running task.
var ErrTaskAlreadyRunning = errors.New("workflow: task already running for session")

// ErrSessionNotFound is returned when the referenced session does not exist.
var ErrSessionNotFound = errors.New("workflow: session not found")

// ErrTaskNotFound is returned when the session has no task row.
var ErrTaskNotFound = errors.New("workflow: no task for session")

// InvalidTransitionError reports a stage transition rejected by the policy table.
type InvalidTransitionError struct {
	From models.Stage
	To   models.Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("workflow: invalid stage transition from %s to %s", e.From, e.To)
}
