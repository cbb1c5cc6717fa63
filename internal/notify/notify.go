// Package notify delivers best-effort workflow notifications to chat.
// Failures are logged, never returned: a missed notification must not fail
// an export.
package notify

import "fmt"

// exportMessage formats the export completion notice.
func exportMessage(sessionID string, exported, failed int) string {
	if failed == 0 {
		return fmt.Sprintf("Export finished for session %s: %d tickets created.", sessionID, exported)
	}
	return fmt.Sprintf("Export finished for session %s: %d tickets created, %d failed. Review the session errors and retry.",
		sessionID, exported, failed)
}

// Fanout forwards each notification to every child notifier.
type Fanout []interface {
	ExportFinished(sessionID string, exported, failed int)
}

// ExportFinished implements the notifier contract over all children.
func (f Fanout) ExportFinished(sessionID string, exported, failed int) {
	for _, n := range f {
		n.ExportFinished(sessionID, exported, failed)
	}
}
