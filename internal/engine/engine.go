// Package engine implements disruption reconciliation: comparing the
// current snapshot against the previously persisted one and classifying
// the change. Reconcile is a pure function of its inputs so that every
// cycle is repeatable and testable without I/O.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"linewatch/internal/domain"
)

// Result is the outcome of one reconciliation: the transition
// classification and the subset of current records that explains it
// (the newly appeared records for a New transition, the full current set
// for Updated and Ongoing, empty for Resolved and None).
type Result struct {
	Transition  domain.Transition
	Records     []domain.DisruptionRecord
	NewIDs      []string
	ResolvedIDs []string
}

// RecordID returns the identity of a record for cross-poll comparison.
// When the upstream source supplies no identifier, identity degrades to a
// deterministic content hash of the record (header, details and period
// bounds). Under this fallback any textual change shows up as a New
// transition rather than Updated; that is the documented degraded mode
// for sources without stable ids.
func RecordID(r domain.DisruptionRecord) string {
	if r.ID != "" {
		return r.ID
	}
	content := r.Header + "|" + r.Details
	for _, p := range r.ActivePeriods {
		content += "|" + periodKey(p.Start) + ".." + periodKey(p.End)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(content)).String()
}

func periodKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("%d", t.Unix())
}

// Reconcile compares the current snapshot against the previous persisted
// state and returns the transition plus the next state to persist.
//
// Classification precedence, first match wins:
//  1. records present and at least one unseen id     -> New
//  2. records present and at least one id went away  -> Updated
//  3. records present                                -> Ongoing
//  4. no records now but some were known before      -> Resolved
//  5. nothing before, nothing now                    -> None
//
// New wins over Updated even when other ids resolved in the same cycle.
//
// The next state is produced unconditionally so that transient fetch gaps
// self-heal on the following successful poll.
func Reconcile(prev domain.PersistedState, current domain.Snapshot) (Result, domain.PersistedState) {
	previousIDs := prev.KnownIDSet()

	currentIDs := make(map[string]struct{}, len(current.Records))
	idOf := make([]string, len(current.Records))
	for i, r := range current.Records {
		id := RecordID(r)
		idOf[i] = id
		currentIDs[id] = struct{}{}
	}

	var newIDs, resolvedIDs []string
	for id := range currentIDs {
		if _, ok := previousIDs[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}
	for id := range previousIDs {
		if _, ok := currentIDs[id]; !ok {
			resolvedIDs = append(resolvedIDs, id)
		}
	}
	sort.Strings(newIDs)
	sort.Strings(resolvedIDs)

	res := Result{NewIDs: newIDs, ResolvedIDs: resolvedIDs}
	switch {
	case len(current.Records) > 0 && len(newIDs) > 0:
		res.Transition = domain.TransitionNew
		newSet := make(map[string]struct{}, len(newIDs))
		for _, id := range newIDs {
			newSet[id] = struct{}{}
		}
		for i, r := range current.Records {
			if _, ok := newSet[idOf[i]]; ok {
				res.Records = append(res.Records, r)
			}
		}
	case len(current.Records) > 0 && len(resolvedIDs) > 0:
		res.Transition = domain.TransitionUpdated
		res.Records = current.Records
	case len(current.Records) > 0:
		res.Transition = domain.TransitionOngoing
		res.Records = current.Records
	case len(previousIDs) > 0:
		res.Transition = domain.TransitionResolved
	default:
		res.Transition = domain.TransitionNone
	}

	known := make([]string, 0, len(currentIDs))
	for id := range currentIDs {
		known = append(known, id)
	}
	sort.Strings(known)

	next := domain.PersistedState{
		Line:         prev.Line,
		UpdatedAt:    current.CapturedAt,
		LastSnapshot: current,
		KnownIDs:     known,
	}
	return res, next
}
