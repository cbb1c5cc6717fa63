package workflow

import (
	"testing"

	"github.com/kwalsh/ticketyard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Session{}, &models.SessionTask{}, &models.SessionValidation{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func createTestSession(t *testing.T, db *gorm.DB) *models.Session {
	t.Helper()
	session, err := CreateSession(db, CreateOpts{
		JiraUserID: "user-1",
		SiteName:   "Legacy Intranet",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session
}

// setStage forces a session to a stage directly, bypassing the policy, for
// test setup only.
func setStage(t *testing.T, db *gorm.DB, sessionID string, stage models.Stage) {
	t.Helper()
	if err := db.Model(&models.Session{}).Where("id = ?", sessionID).
		Update("current_stage", stage).Error; err != nil {
		t.Fatalf("set stage: %v", err)
	}
}
