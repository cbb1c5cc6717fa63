// Package export computes dependency-respecting export order and drives
// per-ticket delivery to an external issue tracker.
package export

import (
	"sort"

	"github.com/kwalsh/ticketyard/internal/depgraph"
	"github.com/kwalsh/ticketyard/internal/models"
)

// OrderResult is the computed export sequence. Degraded is set when the ready
// subset contained a cycle and the order fell back to plain
// (entity_group, user_order) sequence instead of a topological one.
type OrderResult struct {
	Tickets  []models.Ticket
	Degraded bool
}

// Order returns the tickets in dependency-respecting order using Kahn's
// algorithm. Only edges between tickets in the given subset count; a
// dependency on a ticket outside the subset is ignored. Ties are broken by
// (entity_group, user_order, id) so the result is deterministic.
//
// The insertion-time cycle guard makes a cycle here impossible in normal
// operation, but if one is present anyway the full subset is returned in
// plain (entity_group, user_order) sequence with Degraded set.
func Order(tickets []models.Ticket, g *depgraph.Graph) OrderResult {
	byID := make(map[string]*models.Ticket, len(tickets))
	for i := range tickets {
		byID[tickets[i].ID] = &tickets[i]
	}

	// In-degree restricted to the subset.
	indegree := make(map[string]int, len(tickets))
	for id := range byID {
		indegree[id] = 0
		for _, dep := range g.DependenciesOf(id) {
			if _, ok := byID[dep]; ok {
				indegree[id]++
			}
		}
	}

	ready := make([]string, 0, len(tickets))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready, byID)

	ordered := make([]models.Ticket, 0, len(tickets))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, *byID[id])

		var unlocked []string
		for _, dependent := range g.DependentsOf(id) {
			if _, ok := byID[dependent]; !ok {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sortIDs(ready, byID)
		}
	}

	if len(ordered) < len(tickets) {
		// Cycle in the subset: degraded fallback.
		fallback := make([]models.Ticket, len(tickets))
		copy(fallback, tickets)
		sort.SliceStable(fallback, func(i, j int) bool {
			return ticketLess(&fallback[i], &fallback[j])
		})
		return OrderResult{Tickets: fallback, Degraded: true}
	}
	return OrderResult{Tickets: ordered}
}

// ReadyTickets returns the session's exportable subset: flagged ready and not
// yet exported, in (entity_group, user_order) sequence.
func ReadyTickets(tickets []models.Ticket) []models.Ticket {
	ready := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.ReadyForJira && !t.IsExported() {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ticketLess(&ready[i], &ready[j])
	})
	return ready
}

func sortIDs(ids []string, byID map[string]*models.Ticket) {
	sort.SliceStable(ids, func(i, j int) bool {
		return ticketLess(byID[ids[i]], byID[ids[j]])
	})
}

func ticketLess(a, b *models.Ticket) bool {
	if a.EntityGroup != b.EntityGroup {
		return a.EntityGroup < b.EntityGroup
	}
	if a.UserOrder != b.UserOrder {
		return a.UserOrder < b.UserOrder
	}
	return a.ID < b.ID
}
