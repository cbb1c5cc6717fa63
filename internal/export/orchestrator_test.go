package export

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kwalsh/ticketyard/internal/depgraph"
	"github.com/kwalsh/ticketyard/internal/models"
	"github.com/kwalsh/ticketyard/internal/workflow"
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
	err = db.AutoMigrate(&models.Session{}, &models.SessionValidation{}, &models.Ticket{},
		&models.TicketDependency{}, &models.Attachment{}, &models.SessionError{})
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// exportableSession creates a session sitting at the export stage with a
// current validation pass.
func exportableSession(t *testing.T, db *gorm.DB) *models.Session {
	t.Helper()
	session, err := workflow.CreateSession(db, workflow.CreateOpts{
		JiraUserID: "user-1",
		SiteName:   "Legacy Intranet",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := db.Model(&models.Session{}).Where("id = ?", session.ID).
		Update("current_stage", models.StageJiraExport).Error; err != nil {
		t.Fatalf("set stage: %v", err)
	}
	session.CurrentStage = models.StageJiraExport
	if _, err := workflow.CompleteValidation(db, session.ID, true, ""); err != nil {
		t.Fatalf("CompleteValidation: %v", err)
	}
	return session
}

func seedReadyTicket(t *testing.T, db *gorm.DB, sessionID, id string, order int) {
	t.Helper()
	ticket := models.Ticket{
		ID:           id,
		SessionID:    sessionID,
		Title:        "Migrate " + id,
		Description:  "body of " + id,
		EntityGroup:  "pages",
		UserOrder:    order,
		ReadyForJira: true,
	}
	if err := db.Create(&ticket).Error; err != nil {
		t.Fatalf("seed ticket %s: %v", id, err)
	}
}

// fakeExporter records created issues in order and fails the ticket ids
// listed in failOn.
type fakeExporter struct {
	created     []string
	attachments []string
	failOn      map[string]bool
}

func (f *fakeExporter) CreateIssue(ctx context.Context, t *models.Ticket) (string, string, error) {
	if f.failOn[t.ID] {
		return "", "", fmt.Errorf("tracker rejected %s", t.ID)
	}
	f.created = append(f.created, t.ID)
	key := fmt.Sprintf("MIG-%d", len(f.created))
	return key, "https://tracker.example/browse/" + key, nil
}

func (f *fakeExporter) UploadAttachment(ctx context.Context, issueKey string, a *models.Attachment) (string, error) {
	f.attachments = append(f.attachments, issueKey)
	return "att-" + issueKey, nil
}

type fakeNotifier struct {
	sessionID string
	exported  int
	failed    int
	calls     int
}

func (f *fakeNotifier) ExportFinished(sessionID string, exported, failed int) {
	f.sessionID = sessionID
	f.exported = exported
	f.failed = failed
	f.calls++
}

func TestRunFullSuccess(t *testing.T) {
	db := openTestDB(t)
	session := exportableSession(t, db)
	seedReadyTicket(t, db, session.ID, "a", 1)
	seedReadyTicket(t, db, session.ID, "b", 2)
	if err := depgraph.AddEdge(db, session.ID, "a", "b"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	exporter := &fakeExporter{}
	notifier := &fakeNotifier{}
	result, err := Run(context.Background(), RunOpts{
		DB:        db,
		SessionID: session.ID,
		Exporter:  exporter,
		Notifier:  notifier,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Exported != 2 || result.Failed != 0 {
		t.Errorf("result = %+v, want 2 exported, 0 failed", result)
	}
	// a depends on b, so b must go first.
	if len(exporter.created) != 2 || exporter.created[0] != "b" || exporter.created[1] != "a" {
		t.Errorf("creation order = %v, want [b a]", exporter.created)
	}

	// Tracker keys are persisted.
	var stored models.Ticket
	if err := db.First(&stored, "id = ?", "b").Error; err != nil {
		t.Fatalf("load ticket: %v", err)
	}
	if stored.JiraTicketKey != "MIG-1" {
		t.Errorf("ticket key = %q, want MIG-1", stored.JiraTicketKey)
	}
	if !strings.Contains(stored.JiraTicketURL, "MIG-1") {
		t.Errorf("ticket url = %q", stored.JiraTicketURL)
	}

	// Full success completes the session.
	updated, err := workflow.GetSession(db, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if updated.CurrentStage != models.StageCompleted {
		t.Errorf("stage = %s, want %s", updated.CurrentStage, models.StageCompleted)
	}
	if updated.Status != models.SessionCompleted {
		t.Errorf("status = %s, want %s", updated.Status, models.SessionCompleted)
	}

	if notifier.calls != 1 || notifier.exported != 2 || notifier.failed != 0 {
		t.Errorf("notifier = %+v", notifier)
	}
}

func TestRunPartialFailure(t *testing.T) {
	db := openTestDB(t)
	session := exportableSession(t, db)
	seedReadyTicket(t, db, session.ID, "a", 1)
	seedReadyTicket(t, db, session.ID, "b", 2)

	exporter := &fakeExporter{failOn: map[string]bool{"a": true}}
	result, err := Run(context.Background(), RunOpts{
		DB:        db,
		SessionID: session.ID,
		Exporter:  exporter,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Exported != 1 || result.Failed != 1 {
		t.Errorf("result = %+v, want 1 exported, 1 failed", result)
	}

	// Session returns to active for fix-and-retry, not completed.
	updated, err := workflow.GetSession(db, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if updated.CurrentStage != models.StageJiraExport {
		t.Errorf("stage = %s, want %s", updated.CurrentStage, models.StageJiraExport)
	}
	if updated.Status != models.SessionActive {
		t.Errorf("status = %s, want %s", updated.Status, models.SessionActive)
	}

	// The failure is recorded as a retryable session error.
	var errs []models.SessionError
	if err := db.Where("session_id = ?", session.ID).Find(&errs).Error; err != nil {
		t.Fatalf("load errors: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d session errors, want 1", len(errs))
	}
	if errs[0].Category != models.ErrTemporary {
		t.Errorf("category = %s, want %s", errs[0].Category, models.ErrTemporary)
	}
	if errs[0].RelatedTicketID != "a" {
		t.Errorf("related ticket = %s, want a", errs[0].RelatedTicketID)
	}

	// The failed ticket stays unexported for the retry.
	var failed models.Ticket
	if err := db.First(&failed, "id = ?", "a").Error; err != nil {
		t.Fatalf("load ticket: %v", err)
	}
	if failed.IsExported() {
		t.Error("failed ticket has a tracker key")
	}
}

func TestRunFailFast(t *testing.T) {
	db := openTestDB(t)
	session := exportableSession(t, db)
	seedReadyTicket(t, db, session.ID, "a", 1)
	seedReadyTicket(t, db, session.ID, "b", 2)
	seedReadyTicket(t, db, session.ID, "c", 3)

	exporter := &fakeExporter{failOn: map[string]bool{"a": true}}
	result, err := Run(context.Background(), RunOpts{
		DB:        db,
		SessionID: session.ID,
		Exporter:  exporter,
		FailFast:  true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Exported != 0 || result.Failed != 1 {
		t.Errorf("result = %+v, want 0 exported, 1 failed", result)
	}
	if len(result.Order) != 1 {
		t.Errorf("attempted %d tickets, want 1", len(result.Order))
	}
}

func TestRunRequiresValidationPass(t *testing.T) {
	db := openTestDB(t)
	session, err := workflow.CreateSession(db, workflow.CreateOpts{
		JiraUserID: "user-1",
		SiteName:   "Legacy Intranet",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_, err = Run(context.Background(), RunOpts{
		DB:        db,
		SessionID: session.ID,
		Exporter:  &fakeExporter{},
	})
	if err == nil || !strings.Contains(err.Error(), "not export-ready") {
		t.Fatalf("error = %v, want not export-ready", err)
	}
}

func TestRunRequiresInvalidationToBlock(t *testing.T) {
	db := openTestDB(t)
	session := exportableSession(t, db)
	seedReadyTicket(t, db, session.ID, "a", 1)

	// A ticket edit after the pass revokes readiness.
	if err := workflow.Invalidate(db, session.ID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	_, err := Run(context.Background(), RunOpts{
		DB:        db,
		SessionID: session.ID,
		Exporter:  &fakeExporter{},
	})
	if err == nil || !strings.Contains(err.Error(), "not export-ready") {
		t.Fatalf("error = %v, want not export-ready", err)
	}
}

func TestRunRequiresExportStage(t *testing.T) {
	db := openTestDB(t)
	session, err := workflow.CreateSession(db, workflow.CreateOpts{
		JiraUserID: "user-1",
		SiteName:   "Legacy Intranet",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := workflow.CompleteValidation(db, session.ID, true, ""); err != nil {
		t.Fatalf("CompleteValidation: %v", err)
	}

	_, err = Run(context.Background(), RunOpts{
		DB:        db,
		SessionID: session.ID,
		Exporter:  &fakeExporter{},
	})
	if _, ok := err.(*workflow.InvalidTransitionError); !ok {
		t.Fatalf("error = %v, want InvalidTransitionError", err)
	}
}

func TestRunUploadsOversizedBody(t *testing.T) {
	db := openTestDB(t)
	session := exportableSession(t, db)

	big := strings.Repeat("x", models.AttachmentThreshold+1)
	ticket := models.Ticket{
		ID:           "a",
		SessionID:    session.ID,
		Title:        "Migrate everything",
		Description:  big,
		EntityGroup:  "pages",
		ReadyForJira: true,
	}
	if err := db.Create(&ticket).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	attachment := models.Attachment{
		ID:        models.NewID(),
		SessionID: session.ID,
		TicketID:  "a",
		Filename:  "a.txt",
		Content:   big,
		SizeBytes: len(big),
		Status:    models.UploadPending,
	}
	if err := db.Create(&attachment).Error; err != nil {
		t.Fatalf("seed attachment: %v", err)
	}

	exporter := &fakeExporter{}
	result, err := Run(context.Background(), RunOpts{
		DB:        db,
		SessionID: session.ID,
		Exporter:  exporter,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Exported != 1 {
		t.Errorf("exported = %d, want 1", result.Exported)
	}
	if len(exporter.attachments) != 1 || exporter.attachments[0] != "MIG-1" {
		t.Errorf("attachment uploads = %v, want [MIG-1]", exporter.attachments)
	}

	var stored models.Attachment
	if err := db.First(&stored, "ticket_id = ?", "a").Error; err != nil {
		t.Fatalf("load attachment: %v", err)
	}
	if stored.Status != models.UploadUploaded {
		t.Errorf("attachment status = %s, want %s", stored.Status, models.UploadUploaded)
	}
	if stored.JiraAttachmentID != "att-MIG-1" {
		t.Errorf("attachment id = %q, want att-MIG-1", stored.JiraAttachmentID)
	}
}
