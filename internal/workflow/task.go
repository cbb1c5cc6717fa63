package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kwalsh/ticketyard/internal/models"
	"gorm.io/gorm"
)

// mysqlDuplicateEntry is the MySQL error code for a unique key violation.
const mysqlDuplicateEntry = 1062

// StartTask occupies the session's single task slot. If no task row exists
// one is created; a terminated task is overwritten in place, preserving its
// retry count. A running task is a conflict and returns ErrTaskAlreadyRunning.
// The check and the write happen in one transaction so two concurrent starts
// cannot both observe an empty slot; the unique index on session_id backstops
// the create path, and its violation is mapped to the same conflict error.
func StartTask(db *gorm.DB, sessionID string, kind models.TaskKind, jobID string) (*models.SessionTask, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("workflow: unknown task kind %q", kind)
	}
	if jobID == "" {
		return nil, fmt.Errorf("workflow: job id is required")
	}

	var task models.SessionTask
	err := db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := loadSession(tx, sessionID, &session); err != nil {
			return err
		}

		var existing models.SessionTask
		result := tx.Where("session_id = ?", sessionID).First(&existing)
		switch {
		case result.Error == nil:
			if existing.IsRunning() {
				return fmt.Errorf("%w: job %s", ErrTaskAlreadyRunning, existing.JobID)
			}
			// Overwrite the terminated task in place. RetryCount survives:
			// it only increments on failure and only a fresh row resets it.
			if err := tx.Model(&models.SessionTask{}).Where("session_id = ?", sessionID).Updates(map[string]interface{}{
				"kind":            kind,
				"job_id":          jobID,
				"status":          models.TaskRunning,
				"started_at":      time.Now(),
				"completed_at":    nil,
				"failed_at":       nil,
				"failure_context": "",
			}).Error; err != nil {
				return fmt.Errorf("workflow: restart task for session %s: %w", sessionID, err)
			}
			task = existing
			task.Kind = kind
			task.JobID = jobID
			task.Status = models.TaskRunning
			task.CompletedAt = nil
			task.FailedAt = nil
			task.FailureContext = ""
			return nil
		case result.Error == gorm.ErrRecordNotFound:
			task = models.SessionTask{
				ID:        models.NewID(),
				SessionID: sessionID,
				Kind:      kind,
				JobID:     jobID,
				Status:    models.TaskRunning,
				StartedAt: time.Now(),
			}
			if err := tx.Create(&task).Error; err != nil {
				if isDuplicateEntry(err) {
					return fmt.Errorf("%w: job %s", ErrTaskAlreadyRunning, jobID)
				}
				return fmt.Errorf("workflow: create task for session %s: %w", sessionID, err)
			}
			return nil
		default:
			return fmt.Errorf("workflow: load task for session %s: %w", sessionID, result.Error)
		}
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// CompleteTask marks the session's task as completed.
func CompleteTask(db *gorm.DB, sessionID string) (*models.SessionTask, error) {
	return terminateTask(db, sessionID, models.TaskCompleted, "")
}

// FailTask marks the session's task as failed, storing the error context
// verbatim and incrementing the retry count.
func FailTask(db *gorm.DB, sessionID, failureContext string) (*models.SessionTask, error) {
	return terminateTask(db, sessionID, models.TaskFailed, failureContext)
}

// CancelTask marks the session's task as cancelled. Cancellation is
// cooperative: in-flight external work is not interrupted.
func CancelTask(db *gorm.DB, sessionID string) (*models.SessionTask, error) {
	return terminateTask(db, sessionID, models.TaskCancelled, "")
}

// GetTask returns the session's task row, or ErrTaskNotFound.
func GetTask(db *gorm.DB, sessionID string) (*models.SessionTask, error) {
	var task models.SessionTask
	result := db.Where("session_id = ?", sessionID).First(&task)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, sessionID)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("workflow: load task for session %s: %w", sessionID, result.Error)
	}
	return &task, nil
}

// terminateTask transitions the session's task out of running.
func terminateTask(db *gorm.DB, sessionID string, status models.TaskStatus, failureContext string) (*models.SessionTask, error) {
	var task models.SessionTask
	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("session_id = ?", sessionID).First(&task)
		if result.Error == gorm.ErrRecordNotFound {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, sessionID)
		}
		if result.Error != nil {
			return fmt.Errorf("workflow: load task for session %s: %w", sessionID, result.Error)
		}

		now := time.Now()
		updates := map[string]interface{}{"status": status}
		switch status {
		case models.TaskCompleted:
			updates["completed_at"] = now
			task.CompletedAt = &now
		case models.TaskFailed:
			updates["failed_at"] = now
			updates["failure_context"] = failureContext
			updates["retry_count"] = task.RetryCount + 1
			task.FailedAt = &now
			task.FailureContext = failureContext
			task.RetryCount++
		}
		if err := tx.Model(&models.SessionTask{}).Where("session_id = ?", sessionID).Updates(updates).Error; err != nil {
			return fmt.Errorf("workflow: update task for session %s: %w", sessionID, err)
		}
		task.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// isDuplicateEntry reports whether err is a MySQL unique key violation.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
