package models

import (
	"encoding/json"
	"time"
)

// SessionError records a workflow failure against a session, classified by
// who can act on it.
type SessionError struct {
	ID        string `gorm:"primaryKey;size:32"`
	SessionID string `gorm:"size:32;not null;index"`

	Category ErrorCategory `gorm:"size:50;not null;index"`
	Severity ErrorSeverity `gorm:"size:50;not null;index"`
	Stage    Stage         `gorm:"size:50;not null"`

	RelatedFileID   string `gorm:"size:32"`
	RelatedTicketID string `gorm:"size:32"`

	UserMessage string `gorm:"type:text;not null"`
	// RecoveryActions is a JSON array of suggested corrective steps.
	RecoveryActions  string `gorm:"type:json"`
	TechnicalDetails string `gorm:"type:json"`
	ErrorCode        string `gorm:"size:100"`

	CreatedAt time.Time
}

// NewSessionError builds an error record with encoded recovery actions.
func NewSessionError(sessionID string, category ErrorCategory, severity ErrorSeverity, stage Stage, message string, actions []string) *SessionError {
	encoded, _ := json.Marshal(actions)
	return &SessionError{
		ID:              NewID(),
		SessionID:       sessionID,
		Category:        category,
		Severity:        severity,
		Stage:           stage,
		UserMessage:     message,
		RecoveryActions: string(encoded),
	}
}

// IsBlocking reports whether the error blocks workflow progress.
func (e *SessionError) IsBlocking() bool {
	return e.Severity == SeverityBlocking
}

// Actions decodes the recovery action list.
func (e *SessionError) Actions() []string {
	if e.RecoveryActions == "" {
		return nil
	}
	var actions []string
	if err := json.Unmarshal([]byte(e.RecoveryActions), &actions); err != nil {
		return nil
	}
	return actions
}
