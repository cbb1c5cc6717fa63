package db

import (
	"fmt"

	"github.com/kwalsh/ticketyard/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Session{},
		&models.SessionTask{},
		&models.SessionValidation{},
		&models.UploadedFile{},
		&models.Ticket{},
		&models.TicketDependency{},
		&models.Attachment{},
		&models.SessionError{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
