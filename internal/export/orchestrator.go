package export

import (
	"context"
	"fmt"
	"log"

	"github.com/kwalsh/ticketyard/internal/depgraph"
	"github.com/kwalsh/ticketyard/internal/models"
	"github.com/kwalsh/ticketyard/internal/workflow"
	"gorm.io/gorm"
)

// Exporter creates issues in an external tracker. Implementations: Jira
// (REST) and GitHub Issues.
type Exporter interface {
	// CreateIssue creates the ticket in the tracker and returns its key and URL.
	CreateIssue(ctx context.Context, t *models.Ticket) (key, url string, err error)
	// UploadAttachment delivers an oversized ticket body as a side-channel
	// upload and returns the tracker's attachment reference.
	UploadAttachment(ctx context.Context, issueKey string, a *models.Attachment) (string, error)
}

// Notifier receives best-effort progress notifications.
type Notifier interface {
	ExportFinished(sessionID string, exported, failed int)
}

// RunOpts configures an export run.
type RunOpts struct {
	DB        *gorm.DB
	SessionID string
	Exporter  Exporter
	// FailFast aborts the sequence on the first per-ticket failure instead
	// of continuing with the remaining tickets.
	FailFast bool
	// Notifier is optional.
	Notifier Notifier
}

// RunResult reports the outcome of an export run.
type RunResult struct {
	Order    []string // ticket ids in attempted order
	Degraded bool     // cycle fallback ordering was used
	Exported int
	Failed   int
}

// Run exports a session's ready tickets in dependency order. Export requires
// a current validation pass. Each ticket is attempted independently: success
// stores the tracker key/URL, failure records a SessionError and the
// remaining sequence continues unless FailFast is set. On full success the
// session is transitioned to completed; otherwise it returns to active for
// fix-and-retry.
func Run(ctx context.Context, opts RunOpts) (*RunResult, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("export: db is required")
	}
	if opts.Exporter == nil {
		return nil, fmt.Errorf("export: exporter is required")
	}

	ready, err := workflow.IsExportReady(opts.DB, opts.SessionID)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, fmt.Errorf("export: session %s is not export-ready: run validation first", opts.SessionID)
	}

	session, err := workflow.GetSession(opts.DB, opts.SessionID)
	if err != nil {
		return nil, err
	}
	if session.CurrentStage != models.StageJiraExport {
		return nil, &workflow.InvalidTransitionError{From: session.CurrentStage, To: models.StageJiraExport}
	}

	var tickets []models.Ticket
	if err := opts.DB.Where("session_id = ?", opts.SessionID).Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("export: load tickets for session %s: %w", opts.SessionID, err)
	}
	subset := ReadyTickets(tickets)

	graph, err := depgraph.Load(opts.DB, opts.SessionID)
	if err != nil {
		return nil, err
	}

	if err := workflow.SetStatus(opts.DB, opts.SessionID, models.SessionExporting); err != nil {
		return nil, err
	}

	ordering := Order(subset, graph)
	if ordering.Degraded {
		log.Printf("export: session %s: ready subset contains a cycle, using display order", opts.SessionID)
	}

	result := &RunResult{Degraded: ordering.Degraded}
	for i := range ordering.Tickets {
		ticket := &ordering.Tickets[i]
		result.Order = append(result.Order, ticket.ID)

		if err := exportOne(ctx, opts.DB, opts.Exporter, ticket); err != nil {
			result.Failed++
			recordFailure(opts.DB, opts.SessionID, ticket, err)
			if opts.FailFast {
				break
			}
			continue
		}
		result.Exported++
	}

	if err := finishRun(opts.DB, opts.SessionID, result); err != nil {
		return result, err
	}
	if opts.Notifier != nil {
		opts.Notifier.ExportFinished(opts.SessionID, result.Exported, result.Failed)
	}
	return result, nil
}

// exportOne creates a single ticket in the tracker and persists the outcome
// in one transaction. The attachment upload happens after issue creation;
// its failure marks the attachment failed but does not undo the issue.
func exportOne(ctx context.Context, db *gorm.DB, exporter Exporter, ticket *models.Ticket) error {
	key, url, err := exporter.CreateIssue(ctx, ticket)
	if err != nil {
		return fmt.Errorf("export: create issue for ticket %s: %w", ticket.ID, err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Ticket{}).Where("id = ?", ticket.ID).Updates(map[string]interface{}{
			"jira_ticket_key": key,
			"jira_ticket_url": url,
		}).Error; err != nil {
			return fmt.Errorf("export: store tracker key for ticket %s: %w", ticket.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	ticket.JiraTicketKey = key
	ticket.JiraTicketURL = url

	if !ticket.NeedsLargeContent() {
		return nil
	}
	var attachment models.Attachment
	result := db.Where("ticket_id = ?", ticket.ID).First(&attachment)
	if result.Error == gorm.ErrRecordNotFound {
		return nil
	}
	if result.Error != nil {
		return fmt.Errorf("export: load attachment for ticket %s: %w", ticket.ID, result.Error)
	}

	attachmentID, upErr := exporter.UploadAttachment(ctx, key, &attachment)
	if upErr != nil {
		attachment.MarkUploadFailed()
		log.Printf("export: attachment upload failed for ticket %s: %v", ticket.ID, upErr)
	} else {
		attachment.MarkUploaded(attachmentID)
	}
	if err := db.Model(&models.Attachment{}).Where("id = ?", attachment.ID).Updates(map[string]interface{}{
		"status":             attachment.Status,
		"jira_attachment_id": attachment.JiraAttachmentID,
	}).Error; err != nil {
		return fmt.Errorf("export: store attachment status for ticket %s: %w", ticket.ID, err)
	}
	return nil
}

// recordFailure writes a session-level error for a failed ticket. The ticket
// row itself is left untouched so a retry re-attempts it.
func recordFailure(db *gorm.DB, sessionID string, ticket *models.Ticket, cause error) {
	rec := models.NewSessionError(sessionID, models.ErrTemporary, models.SeverityWarning,
		models.StageJiraExport,
		fmt.Sprintf("Export failed for ticket %q: %v", ticket.Title, cause),
		[]string{"Retry the export", "Check the tracker connection and project permissions"})
	rec.RelatedTicketID = ticket.ID
	if err := db.Create(rec).Error; err != nil {
		log.Printf("export: record failure for ticket %s: %v", ticket.ID, err)
	}
}

// finishRun settles session state after the sequence: completed on full
// success, back to active for fix-and-retry otherwise.
func finishRun(db *gorm.DB, sessionID string, result *RunResult) error {
	if result.Failed == 0 {
		if _, err := workflow.Transition(db, sessionID, models.StageCompleted); err != nil {
			return err
		}
		return nil
	}
	return workflow.SetStatus(db, sessionID, models.SessionActive)
}
