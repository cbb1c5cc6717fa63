// Package ticket manages the session's candidate issues: creation from
// processed content, review edits, ordering, and the oversized-body
// attachment lifecycle. Every mutation after a validation pass invalidates
// the session's export readiness.
package ticket

import (
	"fmt"

	"github.com/kwalsh/ticketyard/internal/models"
	"github.com/kwalsh/ticketyard/internal/workflow"
	"gorm.io/gorm"
)

// ErrTicketNotFound is returned when the referenced ticket does not exist in
// the session.
var ErrTicketNotFound = fmt.Errorf("ticket: not found")

// CreateOpts holds the fields for a newly generated ticket.
type CreateOpts struct {
	Title       string
	Description string
	EntityGroup string
	UserOrder   int
	Sources     []models.CSVSource
}

// Create inserts a generated ticket, creating its attachment when the
// description exceeds the inline limit, and bumps the session's generation
// counter.
func Create(db *gorm.DB, sessionID string, opts CreateOpts) (*models.Ticket, error) {
	if opts.Title == "" {
		return nil, fmt.Errorf("ticket: title is required")
	}
	if opts.EntityGroup == "" {
		return nil, fmt.Errorf("ticket: entity group is required")
	}

	t := models.Ticket{
		ID:          models.NewID(),
		SessionID:   sessionID,
		Title:       opts.Title,
		Description: opts.Description,
		EntityGroup: opts.EntityGroup,
		UserOrder:   opts.UserOrder,
	}
	for _, src := range opts.Sources {
		if err := t.AddSource(src.Filename, src.Rows); err != nil {
			return nil, err
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		result := tx.Where("id = ?", sessionID).First(&session)
		if result.Error == gorm.ErrRecordNotFound {
			return fmt.Errorf("%w: %s", workflow.ErrSessionNotFound, sessionID)
		}
		if result.Error != nil {
			return fmt.Errorf("ticket: load session %s: %w", sessionID, result.Error)
		}

		if err := tx.Create(&t).Error; err != nil {
			return fmt.Errorf("ticket: create for session %s: %w", sessionID, err)
		}
		if err := syncAttachment(tx, &t); err != nil {
			return err
		}
		if err := tx.Model(&models.Session{}).Where("id = ?", sessionID).
			Update("total_tickets_generated", gorm.Expr("total_tickets_generated + 1")).Error; err != nil {
			return fmt.Errorf("ticket: bump counter for session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateOpts carries review edits; nil fields are left unchanged.
type UpdateOpts struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	EntityGroup  *string `json:"entity_group"`
	UserOrder    *int    `json:"user_order"`
	ReadyForJira *bool   `json:"ready_for_jira"`
	Sprint       *string `json:"sprint"`
	Assignee     *string `json:"assignee"`
	UserNotes    *string `json:"user_notes"`
}

// Update applies review edits to a ticket and invalidates the session's
// validation pass. A description change re-syncs the attachment.
func Update(db *gorm.DB, sessionID, ticketID string, opts UpdateOpts) (*models.Ticket, error) {
	var t models.Ticket
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := loadTicket(tx, sessionID, ticketID, &t); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if opts.Title != nil {
			updates["title"] = *opts.Title
			t.Title = *opts.Title
		}
		if opts.Description != nil {
			updates["description"] = *opts.Description
			t.Description = *opts.Description
		}
		if opts.EntityGroup != nil {
			updates["entity_group"] = *opts.EntityGroup
			t.EntityGroup = *opts.EntityGroup
		}
		if opts.UserOrder != nil {
			updates["user_order"] = *opts.UserOrder
			t.UserOrder = *opts.UserOrder
		}
		if opts.ReadyForJira != nil {
			updates["ready_for_jira"] = *opts.ReadyForJira
			t.ReadyForJira = *opts.ReadyForJira
		}
		if opts.Sprint != nil {
			updates["sprint"] = *opts.Sprint
			t.Sprint = *opts.Sprint
		}
		if opts.Assignee != nil {
			updates["assignee"] = *opts.Assignee
			t.Assignee = *opts.Assignee
		}
		if opts.UserNotes != nil {
			updates["user_notes"] = *opts.UserNotes
			t.UserNotes = *opts.UserNotes
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&models.Ticket{}).Where("id = ?", ticketID).Updates(updates).Error; err != nil {
			return fmt.Errorf("ticket: update %s: %w", ticketID, err)
		}
		if opts.Description != nil {
			if err := syncAttachment(tx, &t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := workflow.Invalidate(db, sessionID); err != nil {
		return nil, err
	}
	return &t, nil
}

// Reorder assigns user_order by position for the given ticket sequence and
// invalidates the validation pass.
func Reorder(db *gorm.DB, sessionID string, orderedIDs []string) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		for pos, id := range orderedIDs {
			result := tx.Model(&models.Ticket{}).
				Where("id = ? AND session_id = ?", id, sessionID).
				Update("user_order", pos)
			if result.Error != nil {
				return fmt.Errorf("ticket: reorder %s: %w", id, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrTicketNotFound, id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return workflow.Invalidate(db, sessionID)
}

// Delete removes a ticket together with its dependency edges in either
// direction, then invalidates the validation pass.
func Delete(db *gorm.DB, sessionID, ticketID string) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		var t models.Ticket
		if err := loadTicket(tx, sessionID, ticketID, &t); err != nil {
			return err
		}
		if err := tx.Where("ticket_id = ? OR depends_on_id = ?", ticketID, ticketID).
			Delete(&models.TicketDependency{}).Error; err != nil {
			return fmt.Errorf("ticket: delete edges for %s: %w", ticketID, err)
		}
		if err := tx.Where("ticket_id = ?", ticketID).Delete(&models.Attachment{}).Error; err != nil {
			return fmt.Errorf("ticket: delete attachment for %s: %w", ticketID, err)
		}
		if err := tx.Delete(&models.Ticket{}, "id = ?", ticketID).Error; err != nil {
			return fmt.Errorf("ticket: delete %s: %w", ticketID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return workflow.Invalidate(db, sessionID)
}

// List returns the session's tickets in (entity_group, user_order) sequence.
func List(db *gorm.DB, sessionID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := db.Where("session_id = ?", sessionID).
		Order("entity_group ASC, user_order ASC, id ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("ticket: list for session %s: %w", sessionID, err)
	}
	return tickets, nil
}

// Get fetches one ticket scoped to its session.
func Get(db *gorm.DB, sessionID, ticketID string) (*models.Ticket, error) {
	var t models.Ticket
	if err := loadTicket(db, sessionID, ticketID, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// syncAttachment reconciles the 1:1 attachment with the current description:
// created or replaced when the body is oversized, removed when it no longer is.
func syncAttachment(tx *gorm.DB, t *models.Ticket) error {
	if !t.NeedsLargeContent() {
		if err := tx.Where("ticket_id = ?", t.ID).Delete(&models.Attachment{}).Error; err != nil {
			return fmt.Errorf("ticket: drop attachment for %s: %w", t.ID, err)
		}
		return nil
	}

	var existing models.Attachment
	result := tx.Where("ticket_id = ?", t.ID).First(&existing)
	switch {
	case result.Error == gorm.ErrRecordNotFound:
		attachment := models.Attachment{
			ID:        models.NewID(),
			SessionID: t.SessionID,
			TicketID:  t.ID,
			Filename:  fmt.Sprintf("ticket-%s-content.txt", t.ID),
			Content:   t.Description,
			SizeBytes: len(t.Description),
			Status:    models.UploadPending,
		}
		if err := tx.Create(&attachment).Error; err != nil {
			return fmt.Errorf("ticket: create attachment for %s: %w", t.ID, err)
		}
	case result.Error != nil:
		return fmt.Errorf("ticket: load attachment for %s: %w", t.ID, result.Error)
	default:
		if err := tx.Model(&models.Attachment{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"content":            t.Description,
			"size_bytes":         len(t.Description),
			"status":             models.UploadPending,
			"jira_attachment_id": "",
		}).Error; err != nil {
			return fmt.Errorf("ticket: refresh attachment for %s: %w", t.ID, err)
		}
	}
	return nil
}

// loadTicket fetches a ticket scoped to a session, mapping a missing row to
// ErrTicketNotFound.
func loadTicket(tx *gorm.DB, sessionID, ticketID string, out *models.Ticket) error {
	result := tx.Where("id = ? AND session_id = ?", ticketID, sessionID).First(out)
	if result.Error == gorm.ErrRecordNotFound {
		return fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}
	if result.Error != nil {
		return fmt.Errorf("ticket: load %s: %w", ticketID, result.Error)
	}
	return nil
}
