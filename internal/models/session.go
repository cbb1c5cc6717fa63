package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewID returns a random 32-character hex identifier for primary keys.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("models: read random id: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// Session is one migration workflow instance for one authenticated user.
type Session struct {
	ID              string `gorm:"primaryKey;size:32"`
	JiraUserID      string `gorm:"size:255;not null;index"`
	JiraDisplayName string `gorm:"size:255"`
	SiteName        string `gorm:"size:255"`
	SiteDescription string `gorm:"size:2000"`
	JiraProjectKey  string `gorm:"size:50"`

	CurrentStage Stage         `gorm:"size:50;not null;default:site_info_collection;index"`
	Status       SessionStatus `gorm:"size:50;not null;default:active;index"`

	TotalTicketsGenerated int `gorm:"default:0"`

	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	CompletedAt *time.Time

	Task       *SessionTask       `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Validation *SessionValidation `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Files      []UploadedFile     `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Tickets    []Ticket           `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Errors     []SessionError     `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// IsRecoverable reports whether an interrupted session can be resumed.
func (s *Session) IsRecoverable() bool {
	return s.Status != SessionCompleted && s.CurrentStage != StageCompleted
}

// SessionTask tracks the single background job slot for a session.
// The unique index on SessionID enforces at most one row per session.
type SessionTask struct {
	ID        string   `gorm:"primaryKey;size:32"`
	SessionID string   `gorm:"size:32;not null;uniqueIndex"`
	Kind      TaskKind `gorm:"size:50;not null"`
	JobID     string   `gorm:"size:64;not null"`

	Status TaskStatus `gorm:"size:50;not null;default:running"`

	StartedAt   time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time

	RetryCount     int    `gorm:"default:0"`
	FailureContext string `gorm:"type:json"`
}

// IsRunning reports whether the task is currently running.
func (t *SessionTask) IsRunning() bool {
	return t.Status == TaskRunning
}

// CanRetry reports whether a failed task is under the retry ceiling. The
// ceiling is advisory; retry scheduling belongs to the job queue.
func (t *SessionTask) CanRetry() bool {
	return t.Status == TaskFailed && t.RetryCount < 3
}

// Duration returns elapsed time from start to termination, zero while running.
func (t *SessionTask) Duration() time.Duration {
	switch {
	case t.CompletedAt != nil:
		return t.CompletedAt.Sub(t.StartedAt)
	case t.FailedAt != nil:
		return t.FailedAt.Sub(t.StartedAt)
	}
	return 0
}

// SessionValidation tracks export-readiness of a session's ticket set.
// SessionID is the primary key: a true 1:1 with Session.
type SessionValidation struct {
	SessionID string           `gorm:"primaryKey;size:32"`
	Status    ValidationStatus `gorm:"size:50;not null;default:pending"`
	Passed    bool             `gorm:"not null;default:false"`

	LastValidatedAt   *time.Time
	LastInvalidatedAt *time.Time

	Results string `gorm:"type:json"`
}

// IsExportReady reports whether the last validation passed and no ticket edit
// has invalidated it since. Derived from the stored timestamps on every call.
func (v *SessionValidation) IsExportReady() bool {
	if v.Status != ValidationCompleted || !v.Passed {
		return false
	}
	if v.LastValidatedAt == nil {
		return false
	}
	if v.LastInvalidatedAt == nil {
		return true
	}
	return !v.LastValidatedAt.Before(*v.LastInvalidatedAt)
}

// IsInvalidated reports whether a pass was invalidated by a later edit.
func (v *SessionValidation) IsInvalidated() bool {
	if v.LastInvalidatedAt == nil || v.LastValidatedAt == nil {
		return false
	}
	return v.LastInvalidatedAt.After(*v.LastValidatedAt)
}
