package workflow

import (
	"fmt"

	"github.com/kwalsh/ticketyard/internal/models"
	"gorm.io/gorm"
)

// CreateOpts holds the site-info submission that opens a session.
type CreateOpts struct {
	JiraUserID      string
	JiraDisplayName string
	SiteName        string
	SiteDescription string
	JiraProjectKey  string
}

// CreateSession opens a new workflow session at the upload stage, together
// with its pending validation row.
func CreateSession(db *gorm.DB, opts CreateOpts) (*models.Session, error) {
	if opts.JiraUserID == "" {
		return nil, fmt.Errorf("workflow: jira user id is required")
	}
	if opts.SiteName == "" {
		return nil, fmt.Errorf("workflow: site name is required")
	}

	session := models.Session{
		ID:              models.NewID(),
		JiraUserID:      opts.JiraUserID,
		JiraDisplayName: opts.JiraDisplayName,
		SiteName:        opts.SiteName,
		SiteDescription: opts.SiteDescription,
		JiraProjectKey:  opts.JiraProjectKey,
		CurrentStage:    models.StageUpload,
		Status:          models.SessionActive,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("workflow: create session: %w", err)
		}
		validation := models.SessionValidation{
			SessionID: session.ID,
			Status:    models.ValidationPending,
		}
		if err := tx.Create(&validation).Error; err != nil {
			return fmt.Errorf("workflow: create validation for session %s: %w", session.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches a session by id.
func GetSession(db *gorm.DB, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := loadSession(db, sessionID, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetOwnedSession fetches a session and checks ownership.
func GetOwnedSession(db *gorm.DB, sessionID, jiraUserID string) (*models.Session, error) {
	session, err := GetSession(db, sessionID)
	if err != nil {
		return nil, err
	}
	if session.JiraUserID != jiraUserID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// IncompleteSessions lists a user's recoverable sessions, newest first.
func IncompleteSessions(db *gorm.DB, jiraUserID string) ([]models.Session, error) {
	var sessions []models.Session
	err := db.Where("jira_user_id = ? AND status != ? AND current_stage != ?",
		jiraUserID, models.SessionCompleted, models.StageCompleted).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("workflow: list incomplete sessions for %s: %w", jiraUserID, err)
	}
	return sessions, nil
}

// SetStatus updates the session's overall status. Stage writes go through
// Transition only; status moves between active, exporting, and failed as the
// export path progresses. Completed is set exclusively by Transition.
func SetStatus(db *gorm.DB, sessionID string, status models.SessionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("workflow: unknown session status %q", status)
	}
	if status == models.SessionCompleted {
		return fmt.Errorf("workflow: completed status is set by stage transition")
	}
	result := db.Model(&models.Session{}).Where("id = ?", sessionID).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("workflow: set status for session %s: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// AddTicketsGenerated increments the session's monotonic generation counter.
func AddTicketsGenerated(db *gorm.DB, sessionID string, n int) error {
	if n < 0 {
		return fmt.Errorf("workflow: ticket generation counter cannot decrease")
	}
	result := db.Model(&models.Session{}).Where("id = ?", sessionID).
		Update("total_tickets_generated", gorm.Expr("total_tickets_generated + ?", n))
	if result.Error != nil {
		return fmt.Errorf("workflow: bump ticket counter for session %s: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}
