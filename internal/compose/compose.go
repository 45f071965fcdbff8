// Package compose renders transition classifications into human-readable
// notification content. Composition is pure string formatting; whether the
// result is dispatched anywhere is the caller's decision.
package compose

import (
	"fmt"
	"strings"

	"linewatch/internal/domain"
)

// DetailsLimit bounds the free-text details of each record in a body.
const DetailsLimit = 200

const timeLayout = "2006-01-02 15:04"

// Compose renders a title and body for the given transition. The returned
// bool is false for TransitionNone, where there is nothing to say. Record
// order in the body follows the relevant set's order as produced by
// reconciliation.
func Compose(t domain.Transition, records []domain.DisruptionRecord, line domain.LineContext) (domain.Notification, bool) {
	var n domain.Notification
	switch t {
	case domain.TransitionNew:
		n.Title = fmt.Sprintf("New disruption on line %s (%s)", line.ID, line.Name)
	case domain.TransitionUpdated:
		n.Title = fmt.Sprintf("Disruption update on line %s (%s)", line.ID, line.Name)
	case domain.TransitionOngoing:
		n.Title = fmt.Sprintf("Ongoing disruption on line %s (%s)", line.ID, line.Name)
	case domain.TransitionResolved:
		n.Title = fmt.Sprintf("Disruption resolved on line %s (%s)", line.ID, line.Name)
		n.Body = fmt.Sprintf("All reported disruptions on line %s (%s) have cleared.", line.ID, line.Name)
		return n, true
	default:
		return domain.Notification{}, false
	}
	n.Body = formatRecords(records, line)
	return n, true
}

// formatRecords lists each record with its header, truncated details and
// active-period bounds, followed by the line's status page when known.
func formatRecords(records []domain.DisruptionRecord, line domain.LineContext) string {
	var b strings.Builder
	for i, r := range records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Header)
		if r.Details != "" {
			fmt.Fprintf(&b, "   %s\n", Truncate(r.Details, DetailsLimit))
		}
		for _, p := range r.ActivePeriods {
			if p.Start != nil {
				fmt.Fprintf(&b, "   From: %s\n", p.Start.Format(timeLayout))
			}
			if p.End != nil {
				fmt.Fprintf(&b, "   Until: %s\n", p.End.Format(timeLayout))
			}
		}
		if i < len(records)-1 {
			b.WriteString("\n")
		}
	}
	if line.StatusURL != "" {
		fmt.Fprintf(&b, "\nCheck: %s", line.StatusURL)
	}
	return b.String()
}

// Truncate cuts s to at most limit runes, appending an ellipsis marker
// when anything was dropped.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
