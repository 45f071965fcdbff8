package domain

import "time"

// ActivePeriod is one validity window of a disruption. Either bound may be
// absent, in which case the window is open-ended on that side.
type ActivePeriod struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// DisruptionRecord is one reported service irregularity on the monitored
// line, already normalized from whatever shape the upstream source produced.
// ID is the upstream identifier when the source provides one; it may be
// empty (the engine derives a content-based fallback, see engine.RecordID).
// Severity, Cause and Effect are opaque upstream codes passed through
// unmodified.
type DisruptionRecord struct {
	ID            string         `json:"id,omitempty"`
	Header        string         `json:"header"`
	Details       string         `json:"details,omitempty"`
	ActivePeriods []ActivePeriod `json:"active_periods,omitempty"`
	Severity      int            `json:"severity,omitempty"`
	Cause         int            `json:"cause,omitempty"`
	Effect        int            `json:"effect,omitempty"`
}

// Snapshot is the full set of disruptions reported for the monitored line
// at one poll time. Record order is irrelevant to comparison but preserved
// for rendering. A snapshot is created fresh every cycle and never mutated.
type Snapshot struct {
	CapturedAt time.Time          `json:"captured_at"`
	Records    []DisruptionRecord `json:"records"`
}

// PersistedState is the last reconciled snapshot plus the derived id set,
// one per monitored line. KnownIDs is kept sorted so serialization is
// deterministic.
type PersistedState struct {
	Line         string    `json:"line"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastSnapshot Snapshot  `json:"last_snapshot"`
	KnownIDs     []string  `json:"known_ids"`
}

// KnownIDSet returns KnownIDs as a set.
func (s PersistedState) KnownIDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.KnownIDs))
	for _, id := range s.KnownIDs {
		set[id] = struct{}{}
	}
	return set
}

// Transition classifies the change between two consecutive snapshots.
type Transition string

const (
	TransitionNone     Transition = "none"
	TransitionNew      Transition = "new"
	TransitionUpdated  Transition = "updated"
	TransitionOngoing  Transition = "ongoing"
	TransitionResolved Transition = "resolved"
)

// LineContext carries the identity of the monitored line into the composer
// and the notification channels.
type LineContext struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StatusURL string `json:"status_url,omitempty"`
}

// Notification is composed content ready for dispatch.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CheckResult summarizes one completed poll cycle for the history log.
type CheckResult struct {
	ID            int64      `json:"id"`
	TS            string     `json:"ts" format:"date-time"`
	Line          string     `json:"line"`
	Transition    Transition `json:"transition"`
	RecordCount   int        `json:"record_count"`
	NewCount      int        `json:"new_count"`
	ResolvedCount int        `json:"resolved_count"`
	Error         string     `json:"error,omitempty"`
}

// SentNotification is one dispatched notification as recorded in history.
type SentNotification struct {
	ID         string     `json:"id"`
	TS         string     `json:"ts" format:"date-time"`
	Line       string     `json:"line"`
	Transition Transition `json:"transition"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Channels   []string   `json:"channels"`
	Failures   []string   `json:"failures,omitempty"`
}
