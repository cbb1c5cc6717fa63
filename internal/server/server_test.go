package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kwalsh/ticketyard/internal/db"
	"github.com/kwalsh/ticketyard/internal/models"
	"github.com/kwalsh/ticketyard/internal/workflow"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestStart_NilDB(t *testing.T) {
	err := Start(context.Background(), StartOpts{DB: nil})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
	if !strings.Contains(err.Error(), "db is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db is required")
	}
}

// fakeExporter answers every create with sequential keys.
type fakeExporter struct {
	created int
}

func (f *fakeExporter) CreateIssue(ctx context.Context, t *models.Ticket) (string, string, error) {
	f.created++
	key := fmt.Sprintf("MIG-%d", f.created)
	return key, "https://tracker.example/browse/" + key, nil
}

func (f *fakeExporter) UploadAttachment(ctx context.Context, issueKey string, a *models.Attachment) (string, error) {
	return "att-1", nil
}

func testRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, StartOpts{DB: gormDB, Exporter: &fakeExporter{}})
	return router, gormDB
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createSessionViaAPI(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/sessions",
		`{"jira_user_id":"user-1","site_name":"Legacy Intranet"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: status = %d, body = %s", w.Code, w.Body.String())
	}
	var session models.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.ID
}

func TestCreateAndGetSession(t *testing.T) {
	router, _ := testRouter(t)
	id := createSessionViaAPI(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/sessions/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var session models.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.CurrentStage != models.StageUpload {
		t.Errorf("stage = %s, want %s", session.CurrentStage, models.StageUpload)
	}
}

func TestCreateSessionMissingFields(t *testing.T) {
	router, _ := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/sessions", `{"site_name":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	router, _ := testRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/sessions/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Category != "user_fixable" {
		t.Errorf("category = %q, want user_fixable", body.Category)
	}
}

func TestInvalidTransitionConflict(t *testing.T) {
	router, _ := testRouter(t)
	id := createSessionViaAPI(t, router)

	// Skipping from upload straight to review is refused.
	w := doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/stage", `{"target":"review"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", w.Code, w.Body.String())
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.RecoveryActions) == 0 {
		t.Error("conflict response has no recovery actions")
	}

	// The legal next stage works.
	w = doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/stage", `{"target":"processing"}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestDependencyCycleUnprocessable(t *testing.T) {
	router, gormDB := testRouter(t)
	id := createSessionViaAPI(t, router)

	for _, ticketID := range []string{"a", "b"} {
		seed := models.Ticket{ID: ticketID, SessionID: id, Title: ticketID, Description: "d", EntityGroup: "pages"}
		if err := gormDB.Create(&seed).Error; err != nil {
			t.Fatalf("seed ticket: %v", err)
		}
	}

	w := doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/dependencies",
		`{"ticket_id":"a","depends_on_id":"b"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add edge: status = %d, body = %s", w.Code, w.Body.String())
	}

	// The reverse edge closes a cycle.
	w = doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/dependencies",
		`{"ticket_id":"b","depends_on_id":"a"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}

	// Self-dependency gets the same treatment.
	w = doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/dependencies",
		`{"ticket_id":"a","depends_on_id":"a"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("self-loop status = %d, want 422", w.Code)
	}

	// The graph endpoint shows only the accepted edge.
	w = doJSON(t, router, http.MethodGet, "/api/sessions/"+id+"/graph", "")
	if w.Code != http.StatusOK {
		t.Fatalf("graph: status = %d", w.Code)
	}
	var graph struct {
		DependsOn map[string][]string `json:"depends_on"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &graph); err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	if len(graph.DependsOn) != 1 || graph.DependsOn["a"][0] != "b" {
		t.Errorf("graph = %v", graph.DependsOn)
	}
}

func TestTaskConflict(t *testing.T) {
	router, _ := testRouter(t)
	id := createSessionViaAPI(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/task/start",
		`{"kind":"processing","job_id":"job-1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("start: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/task/start",
		`{"kind":"processing","job_id":"job-2"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/task/complete", "")
	if w.Code != http.StatusOK {
		t.Errorf("complete status = %d, want 200", w.Code)
	}
}

func TestTicketLifecycleOverAPI(t *testing.T) {
	router, _ := testRouter(t)
	id := createSessionViaAPI(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/tickets",
		`{"title":"Migrate landing page","description":"body","entity_group":"pages"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create ticket: status = %d, body = %s", w.Code, w.Body.String())
	}
	var created models.Ticket
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(t, router, http.MethodPatch, "/api/sessions/"+id+"/tickets/"+created.ID,
		`{"ready_for_jira":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/sessions/"+id+"/tickets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	var tickets []models.Ticket
	if err := json.Unmarshal(w.Body.Bytes(), &tickets); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tickets) != 1 || !tickets[0].ReadyForJira {
		t.Errorf("tickets = %+v", tickets)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/sessions/"+id+"/tickets/"+created.ID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", w.Code)
	}
}

func TestExportReadyReflectsValidation(t *testing.T) {
	router, gormDB := testRouter(t)
	id := createSessionViaAPI(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/sessions/"+id+"/export/ready", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var readiness struct {
		Ready bool `json:"ready"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &readiness); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if readiness.Ready {
		t.Error("fresh session reads as export ready")
	}

	w = doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/validation/complete",
		`{"passed":true,"results":"{}"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("complete validation: status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/sessions/"+id+"/export/ready", "")
	if err := json.Unmarshal(w.Body.Bytes(), &readiness); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !readiness.Ready {
		t.Error("session not ready after a passing validation")
	}
	_ = gormDB
}

func TestExportEndpoint(t *testing.T) {
	router, gormDB := testRouter(t)
	id := createSessionViaAPI(t, router)

	seed := models.Ticket{ID: "a", SessionID: id, Title: "t", Description: "d",
		EntityGroup: "pages", ReadyForJira: true}
	if err := gormDB.Create(&seed).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	if err := gormDB.Model(&models.Session{}).Where("id = ?", id).
		Update("current_stage", models.StageJiraExport).Error; err != nil {
		t.Fatalf("set stage: %v", err)
	}
	if _, err := workflow.CompleteValidation(gormDB, id, true, ""); err != nil {
		t.Fatalf("CompleteValidation: %v", err)
	}

	w := doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	updated, err := workflow.GetSession(gormDB, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if updated.CurrentStage != models.StageCompleted {
		t.Errorf("stage = %s, want %s", updated.CurrentStage, models.StageCompleted)
	}
}

func TestExportWithoutTarget(t *testing.T) {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, StartOpts{DB: gormDB}) // no exporter configured

	w := doJSON(t, router, http.MethodPost, "/api/sessions/x/export", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
