package workflow

import (
	"fmt"
	"time"

	"github.com/kwalsh/ticketyard/internal/models"
	"gorm.io/gorm"
)

// stageTransitions is the explicit adjacency table for the stage machine.
// Forward progression is strictly sequential; review may re-enter processing
// (reprocess) and jira_export may re-enter review (fix and retry). The
// completed stage is terminal.
var stageTransitions = map[models.Stage][]models.Stage{
	models.StageSiteInfoCollection: {models.StageUpload},
	models.StageUpload:             {models.StageProcessing},
	models.StageProcessing:         {models.StageReview},
	models.StageReview:             {models.StageJiraExport, models.StageProcessing},
	models.StageJiraExport:         {models.StageCompleted, models.StageReview},
	models.StageCompleted:          {},
}

// CanTransition reports whether the policy table allows moving from one stage
// to another.
func CanTransition(from, to models.Stage) bool {
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves a session to the target stage. It is the only writer of
// CurrentStage. Entering the completed stage also sets the session status to
// completed and stamps CompletedAt; there are no other side effects.
func Transition(db *gorm.DB, sessionID string, target models.Stage) (*models.Session, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("workflow: unknown stage %q", target)
	}

	var session models.Session
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := loadSession(tx, sessionID, &session); err != nil {
			return err
		}
		if !CanTransition(session.CurrentStage, target) {
			return &InvalidTransitionError{From: session.CurrentStage, To: target}
		}

		updates := map[string]interface{}{"current_stage": target}
		if target == models.StageCompleted {
			now := time.Now()
			updates["status"] = models.SessionCompleted
			updates["completed_at"] = now
			session.Status = models.SessionCompleted
			session.CompletedAt = &now
		}
		if err := tx.Model(&models.Session{}).Where("id = ?", sessionID).Updates(updates).Error; err != nil {
			return fmt.Errorf("workflow: update stage for session %s: %w", sessionID, err)
		}
		session.CurrentStage = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// loadSession fetches a session inside a transaction, mapping a missing row
// to ErrSessionNotFound.
func loadSession(tx *gorm.DB, sessionID string, out *models.Session) error {
	result := tx.Where("id = ?", sessionID).First(out)
	if result.Error == gorm.ErrRecordNotFound {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if result.Error != nil {
		return fmt.Errorf("workflow: load session %s: %w", sessionID, result.Error)
	}
	return nil
}
