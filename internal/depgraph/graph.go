// Package depgraph maintains the directed dependency graph over a session's
// tickets. Edges are guarded at insertion time so the graph is acyclic at all
// times; the persisted form is the ticket_dependencies junction rows.
package depgraph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrSelfDependency is returned when a ticket is added as its own dependency.
var ErrSelfDependency = errors.New("depgraph: ticket cannot depend on itself")

// CircularDependencyError reports an edge rejected because it would close a cycle.
type CircularDependencyError struct {
	TicketID    string
	DependsOnID string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("depgraph: adding dependency %s -> %s would create a cycle", e.TicketID, e.DependsOnID)
}

// Graph is an in-memory adjacency relation keyed by ticket id. The zero value
// is not usable; construct with New.
type Graph struct {
	// deps maps a ticket to the set of tickets it depends on.
	deps map[string]map[string]bool
	// dependents is the reverse relation.
	dependents map[string]map[string]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		deps:       make(map[string]map[string]bool),
		dependents: make(map[string]map[string]bool),
	}
}

// FromEdges builds a graph from persisted {ticket, dependsOn} pairs without
// re-running the insertion guard. Persisted rows already passed it; if the
// store was modified out of band the export ordering degrades instead of
// refusing to load.
func FromEdges(pairs [][2]string) *Graph {
	g := New()
	for _, p := range pairs {
		g.insert(p[0], p[1])
	}
	return g
}

// AddEdge records that ticket depends on dependsOn. It fails with
// ErrSelfDependency for a self-loop and with CircularDependencyError when
// dependsOn can already reach ticket through existing edges. On failure the
// graph is unchanged.
func (g *Graph) AddEdge(ticketID, dependsOnID string) error {
	if ticketID == dependsOnID {
		return ErrSelfDependency
	}
	if g.reaches(dependsOnID, ticketID) {
		return &CircularDependencyError{TicketID: ticketID, DependsOnID: dependsOnID}
	}
	g.insert(ticketID, dependsOnID)
	return nil
}

func (g *Graph) insert(ticketID, dependsOnID string) {
	if g.deps[ticketID] == nil {
		g.deps[ticketID] = make(map[string]bool)
	}
	g.deps[ticketID][dependsOnID] = true
	if g.dependents[dependsOnID] == nil {
		g.dependents[dependsOnID] = make(map[string]bool)
	}
	g.dependents[dependsOnID][ticketID] = true
}

// RemoveEdge deletes the edge unconditionally. Removing a missing edge is a no-op.
func (g *Graph) RemoveEdge(ticketID, dependsOnID string) {
	delete(g.deps[ticketID], dependsOnID)
	delete(g.dependents[dependsOnID], ticketID)
}

// HasEdge reports whether the direct edge exists.
func (g *Graph) HasEdge(ticketID, dependsOnID string) bool {
	return g.deps[ticketID][dependsOnID]
}

// DependenciesOf returns the tickets the given ticket directly depends on,
// sorted for deterministic output. Not a transitive closure.
func (g *Graph) DependenciesOf(ticketID string) []string {
	return sortedKeys(g.deps[ticketID])
}

// DependentsOf returns the tickets that directly depend on the given ticket,
// sorted for deterministic output.
func (g *Graph) DependentsOf(ticketID string) []string {
	return sortedKeys(g.dependents[ticketID])
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, set := range g.deps {
		n += len(set)
	}
	return n
}

// Adjacency materializes the full depends-on relation for visualization and
// debugging. Keys are tickets with at least one dependency.
func (g *Graph) Adjacency() map[string][]string {
	out := make(map[string][]string, len(g.deps))
	for id, set := range g.deps {
		if len(set) == 0 {
			continue
		}
		out[id] = sortedKeys(set)
	}
	return out
}

// reaches reports whether target is reachable from start by following
// depends-on edges. Depth-first; worst case O(V+E), acceptable because edges
// are added interactively, not in bulk.
func (g *Graph) reaches(start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g.deps[node] {
			if next == target {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
