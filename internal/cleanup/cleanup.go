// Package cleanup removes stale incomplete sessions past the retention age.
// Completed sessions are kept forever; everything else is deleted with its
// owned rows once the cutoff passes.
package cleanup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kwalsh/ticketyard/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DefaultRetention is the age after which an incomplete session is deleted.
const DefaultRetention = 30 * 24 * time.Hour

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Sweep deletes incomplete sessions created before the retention cutoff,
// together with their tasks, validations, files, tickets, edges, attachments,
// and error records. Returns the number of sessions removed.
func Sweep(db *gorm.DB, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().Add(-retention)

	var removed int
	err := db.Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.Session{}).
			Where("status != ? AND created_at < ?", models.SessionCompleted, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("cleanup: find stale sessions: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("ticket_id IN (?)",
			tx.Model(&models.Ticket{}).Select("id").Where("session_id IN ?", ids),
		).Delete(&models.TicketDependency{}).Error; err != nil {
			return fmt.Errorf("cleanup: delete edges: %w", err)
		}
		for _, m := range []interface{}{
			&models.Attachment{},
			&models.Ticket{},
			&models.UploadedFile{},
			&models.SessionTask{},
			&models.SessionValidation{},
			&models.SessionError{},
		} {
			if err := tx.Where("session_id IN ?", ids).Delete(m).Error; err != nil {
				return fmt.Errorf("cleanup: delete session rows: %w", err)
			}
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("cleanup: delete sessions: %w", err)
		}
		removed = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// NextRun parses a 5-field cron expression and returns the duration until the
// next fire time.
func NextRun(expr string) (time.Duration, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0, fmt.Errorf("cleanup: parse schedule %q: %w", expr, err)
	}
	d := time.Until(sched.Next(time.Now()))
	if d < 0 {
		d = 0
	}
	return d, nil
}

// Loop runs Sweep on the given cron schedule until ctx is cancelled. Sweep
// failures are logged and the loop continues.
func Loop(ctx context.Context, db *gorm.DB, schedule string, retention time.Duration) error {
	for {
		wait, err := NextRun(schedule)
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		n, err := Sweep(db, retention)
		if err != nil {
			log.Printf("cleanup: sweep failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("cleanup: removed %d stale sessions", n)
		}
	}
}
