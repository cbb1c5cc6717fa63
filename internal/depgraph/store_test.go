package depgraph

import (
	"errors"
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
	if err := db.AutoMigrate(&models.Session{}, &models.Ticket{}, &models.TicketDependency{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedTicket(t *testing.T, db *gorm.DB, sessionID, id string) {
	t.Helper()
	ticket := models.Ticket{
		ID:          id,
		SessionID:   sessionID,
		Title:       "Migrate " + id,
		Description: "body",
		EntityGroup: "pages",
	}
	if err := db.Create(&ticket).Error; err != nil {
		t.Fatalf("seed ticket %s: %v", id, err)
	}
}

func TestStoreAddEdge(t *testing.T) {
	db := openTestDB(t)
	seedTicket(t, db, "s1", "a")
	seedTicket(t, db, "s1", "b")

	if err := AddEdge(db, "s1", "b", "a"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	g, err := Load(db, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !g.HasEdge("b", "a") {
		t.Error("persisted edge b -> a missing from loaded graph")
	}
	if g.EdgeCount() != 1 {
		t.Errorf("EdgeCount = %d, want 1", g.EdgeCount())
	}
}

func TestStoreAddEdgeRejectsCycle(t *testing.T) {
	db := openTestDB(t)
	seedTicket(t, db, "s1", "a")
	seedTicket(t, db, "s1", "b")
	seedTicket(t, db, "s1", "c")

	if err := AddEdge(db, "s1", "b", "a"); err != nil {
		t.Fatalf("AddEdge b -> a: %v", err)
	}
	if err := AddEdge(db, "s1", "c", "b"); err != nil {
		t.Fatalf("AddEdge c -> b: %v", err)
	}

	err := AddEdge(db, "s1", "a", "c")
	var cycle *CircularDependencyError
	if !errors.As(err, &cycle) {
		t.Fatalf("error = %v, want CircularDependencyError", err)
	}

	// The store still holds exactly the two accepted edges.
	var count int64
	if err := db.Model(&models.TicketDependency{}).Count(&count).Error; err != nil {
		t.Fatalf("count edges: %v", err)
	}
	if count != 2 {
		t.Errorf("persisted edges = %d, want 2", count)
	}
}

func TestStoreAddEdgeRejectsSelfDependency(t *testing.T) {
	db := openTestDB(t)
	seedTicket(t, db, "s1", "a")

	if err := AddEdge(db, "s1", "a", "a"); !errors.Is(err, ErrSelfDependency) {
		t.Fatalf("error = %v, want ErrSelfDependency", err)
	}
}

func TestStoreAddEdgeRequiresSessionTickets(t *testing.T) {
	db := openTestDB(t)
	seedTicket(t, db, "s1", "a")
	seedTicket(t, db, "s2", "b")

	if err := AddEdge(db, "s1", "a", "b"); err == nil {
		t.Error("expected error for cross-session edge")
	}
	if err := AddEdge(db, "s1", "a", "missing"); err == nil {
		t.Error("expected error for unknown ticket")
	}
}

func TestStoreRemoveEdge(t *testing.T) {
	db := openTestDB(t)
	seedTicket(t, db, "s1", "a")
	seedTicket(t, db, "s1", "b")

	if err := AddEdge(db, "s1", "b", "a"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := RemoveEdge(db, "b", "a"); err != nil {
		t.Fatalf("RemoveEdge: %v", err)
	}

	g, err := Load(db, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount = %d, want 0", g.EdgeCount())
	}

	// Removing a missing edge is fine.
	if err := RemoveEdge(db, "b", "a"); err != nil {
		t.Errorf("RemoveEdge on missing edge: %v", err)
	}
}

func TestLoadScopedToSession(t *testing.T) {
	db := openTestDB(t)
	seedTicket(t, db, "s1", "a")
	seedTicket(t, db, "s1", "b")
	seedTicket(t, db, "s2", "x")
	seedTicket(t, db, "s2", "y")

	if err := AddEdge(db, "s1", "b", "a"); err != nil {
		t.Fatalf("AddEdge s1: %v", err)
	}
	if err := AddEdge(db, "s2", "y", "x"); err != nil {
		t.Fatalf("AddEdge s2: %v", err)
	}

	g, err := Load(db, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.EdgeCount() != 1 || !g.HasEdge("b", "a") {
		t.Errorf("session s1 graph holds wrong edges: %v", g.Adjacency())
	}
}
