package workflow

import (
	"fmt"
	"time"

	"github.com/kwalsh/ticketyard/internal/models"
	"gorm.io/gorm"
)

// StartValidation moves the session's validation to processing and clears
// prior results. The row is created on first use.
func StartValidation(db *gorm.DB, sessionID string) (*models.SessionValidation, error) {
	var validation models.SessionValidation
	err := db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := loadSession(tx, sessionID, &session); err != nil {
			return err
		}
		if err := loadOrInitValidation(tx, sessionID, &validation); err != nil {
			return err
		}
		validation.Status = models.ValidationProcessing
		validation.Results = ""
		if err := tx.Save(&validation).Error; err != nil {
			return fmt.Errorf("workflow: start validation for session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &validation, nil
}

// CompleteValidation records a finished validation run with its verdict and
// results payload, stamping the last-validated time.
func CompleteValidation(db *gorm.DB, sessionID string, passed bool, results string) (*models.SessionValidation, error) {
	var validation models.SessionValidation
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrInitValidation(tx, sessionID, &validation); err != nil {
			return err
		}
		now := time.Now()
		validation.Status = models.ValidationCompleted
		validation.Passed = passed
		validation.LastValidatedAt = &now
		validation.Results = results
		if err := tx.Save(&validation).Error; err != nil {
			return fmt.Errorf("workflow: complete validation for session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &validation, nil
}

// FailValidation records a validation run that could not complete. The error
// context is stored as the results payload; passed is forced false.
func FailValidation(db *gorm.DB, sessionID, errorContext string) (*models.SessionValidation, error) {
	var validation models.SessionValidation
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := loadOrInitValidation(tx, sessionID, &validation); err != nil {
			return err
		}
		validation.Status = models.ValidationFailed
		validation.Passed = false
		validation.Results = errorContext
		if err := tx.Save(&validation).Error; err != nil {
			return fmt.Errorf("workflow: fail validation for session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &validation, nil
}

// Invalidate forces passed=false and stamps the last-invalidated time. Called
// whenever a ticket is edited after a prior pass.
func Invalidate(db *gorm.DB, sessionID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var validation models.SessionValidation
		if err := loadOrInitValidation(tx, sessionID, &validation); err != nil {
			return err
		}
		now := time.Now()
		validation.Passed = false
		validation.LastInvalidatedAt = &now
		if err := tx.Save(&validation).Error; err != nil {
			return fmt.Errorf("workflow: invalidate validation for session %s: %w", sessionID, err)
		}
		return nil
	})
}

// IsExportReady re-derives export readiness from the stored validation row.
// Never cached: ticket edits elsewhere call Invalidate without reloading the
// session the export path holds.
func IsExportReady(db *gorm.DB, sessionID string) (bool, error) {
	var validation models.SessionValidation
	result := db.Where("session_id = ?", sessionID).First(&validation)
	if result.Error == gorm.ErrRecordNotFound {
		return false, nil
	}
	if result.Error != nil {
		return false, fmt.Errorf("workflow: load validation for session %s: %w", sessionID, result.Error)
	}
	return validation.IsExportReady(), nil
}

// loadOrInitValidation fetches the session's validation row, initializing a
// pending in-memory row if none exists yet.
func loadOrInitValidation(tx *gorm.DB, sessionID string, out *models.SessionValidation) error {
	result := tx.Where("session_id = ?", sessionID).First(out)
	if result.Error == gorm.ErrRecordNotFound {
		*out = models.SessionValidation{
			SessionID: sessionID,
			Status:    models.ValidationPending,
		}
		return nil
	}
	if result.Error != nil {
		return fmt.Errorf("workflow: load validation for session %s: %w", sessionID, result.Error)
	}
	return nil
}
