package depgraph

import (
	"fmt"

	"github.com/kwalsh/ticketyard/internal/models"
	"gorm.io/gorm"
)

// Load materializes the dependency graph for a session from its
// ticket_dependencies rows.
func Load(db *gorm.DB, sessionID string) (*Graph, error) {
	var edges []models.TicketDependency
	err := db.Joins("JOIN tickets ON tickets.id = ticket_dependencies.ticket_id").
		Where("tickets.session_id = ?", sessionID).
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("depgraph: load edges for session %s: %w", sessionID, err)
	}

	pairs := make([][2]string, len(edges))
	for i, e := range edges {
		pairs[i] = [2]string{e.TicketID, e.DependsOnID}
	}
	return FromEdges(pairs), nil
}

// AddEdge validates and persists a dependency edge in one transaction: both
// tickets must belong to the session, and the edge must not close a cycle
// over the already-persisted edges.
func AddEdge(db *gorm.DB, sessionID, ticketID, dependsOnID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if ticketID == dependsOnID {
			return ErrSelfDependency
		}

		var count int64
		if err := tx.Model(&models.Ticket{}).
			Where("session_id = ? AND id IN ?", sessionID, []string{ticketID, dependsOnID}).
			Count(&count).Error; err != nil {
			return fmt.Errorf("depgraph: check tickets for session %s: %w", sessionID, err)
		}
		if count != 2 {
			return fmt.Errorf("depgraph: tickets %s, %s not found in session %s", ticketID, dependsOnID, sessionID)
		}

		g, err := Load(tx, sessionID)
		if err != nil {
			return err
		}
		if err := g.AddEdge(ticketID, dependsOnID); err != nil {
			return err
		}

		edge := models.TicketDependency{TicketID: ticketID, DependsOnID: dependsOnID}
		if err := tx.Create(&edge).Error; err != nil {
			return fmt.Errorf("depgraph: create edge %s -> %s: %w", ticketID, dependsOnID, err)
		}
		return nil
	})
}

// RemoveEdge deletes a persisted dependency edge. Unconditional; removing a
// missing edge is not an error.
func RemoveEdge(db *gorm.DB, ticketID, dependsOnID string) error {
	err := db.Where("ticket_id = ? AND depends_on_id = ?", ticketID, dependsOnID).
		Delete(&models.TicketDependency{}).Error
	if err != nil {
		return fmt.Errorf("depgraph: remove edge %s -> %s: %w", ticketID, dependsOnID, err)
	}
	return nil
}
