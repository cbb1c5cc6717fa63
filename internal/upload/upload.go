// Package upload stores metadata and parsed content for uploaded CSV files.
// Parsing and classification themselves happen in the collaborator that
// feeds this package; it records their outcomes against the session.
package upload

import (
	"fmt"
	"time"

	"github.com/kwalsh/ticketyard/internal/models"
	"github.com/kwalsh/ticketyard/internal/workflow"
	"gorm.io/gorm"
)

// ErrFileNotFound is returned when the referenced file does not exist in the session.
var ErrFileNotFound = fmt.Errorf("upload: file not found")

// AddOpts holds one uploaded file's metadata and parsed payload.
type AddOpts struct {
	Filename      string
	SizeBytes     int
	ParsedContent string // JSON: {"headers": [...], "rows": [...]}
	RowCount      int
}

// Add records an uploaded file against the session.
func Add(db *gorm.DB, sessionID string, opts AddOpts) (*models.UploadedFile, error) {
	if opts.Filename == "" {
		return nil, fmt.Errorf("upload: filename is required")
	}

	f := models.UploadedFile{
		ID:            models.NewID(),
		SessionID:     sessionID,
		Filename:      opts.Filename,
		SizeBytes:     opts.SizeBytes,
		ParsedContent: opts.ParsedContent,
		Status:        models.FilePending,
		RowCount:      opts.RowCount,
		UploadedAt:    time.Now(),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		result := tx.Where("id = ?", sessionID).First(&session)
		if result.Error == gorm.ErrRecordNotFound {
			return fmt.Errorf("%w: %s", workflow.ErrSessionNotFound, sessionID)
		}
		if result.Error != nil {
			return fmt.Errorf("upload: load session %s: %w", sessionID, result.Error)
		}
		if err := tx.Create(&f).Error; err != nil {
			return fmt.Errorf("upload: create file for session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Classify records the detected CSV type for a file.
func Classify(db *gorm.DB, sessionID, fileID, csvType string) error {
	result := db.Model(&models.UploadedFile{}).
		Where("id = ? AND session_id = ?", fileID, sessionID).
		Update("csv_type", csvType)
	if result.Error != nil {
		return fmt.Errorf("upload: classify file %s: %w", fileID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return nil
}

// MarkValidated records the file's validation verdict.
func MarkValidated(db *gorm.DB, sessionID, fileID string, valid bool) error {
	status := models.FileValid
	if !valid {
		status = models.FileInvalid
	}
	result := db.Model(&models.UploadedFile{}).
		Where("id = ? AND session_id = ?", fileID, sessionID).
		Updates(map[string]interface{}{
			"status":       status,
			"processed_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("upload: mark file %s validated: %w", fileID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return nil
}

// List returns the session's files in upload order.
func List(db *gorm.DB, sessionID string) ([]models.UploadedFile, error) {
	var files []models.UploadedFile
	err := db.Where("session_id = ?", sessionID).Order("uploaded_at ASC, id ASC").Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("upload: list files for session %s: %w", sessionID, err)
	}
	return files, nil
}
