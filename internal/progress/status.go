package progress

import "time"

// IndexStatusView is the externally-facing read model a caller (a tool, the
// status HTTP surface) uses to report indexing progress (spec §3).
type IndexStatusView struct {
	InProgress             bool
	ProgressPercentage     *int
	IndexedFiles           int
	TotalFiles             int
	StartTime              *time.Time
	EstimatedTimeRemaining *time.Duration
	State                  State
}

// Status derives an IndexStatusView from the monitor's current snapshot and
// now, the caller-supplied observation instant.
//
// ETA = (total-indexed) * elapsed / indexed when in-progress, a start time
// is known, and indexed > 0; zero once indexed >= total; undefined
// (nil) otherwise (spec §3).
func (m *Monitor) Status(now time.Time) IndexStatusView {
	snap := m.Snapshot()

	view := IndexStatusView{
		InProgress:   snap.State == Indexing,
		IndexedFiles: snap.Indexed,
		TotalFiles:   snap.Total,
		State:        snap.State,
	}
	if snap.Percentage != 0 || snap.State == Indexing {
		pct := snap.Percentage
		view.ProgressPercentage = &pct
	}
	if !snap.StartedAt.IsZero() {
		t := snap.StartedAt
		view.StartTime = &t
	}

	if view.InProgress && !snap.StartedAt.IsZero() {
		switch {
		case snap.Indexed >= snap.Total && snap.Total > 0:
			zero := time.Duration(0)
			view.EstimatedTimeRemaining = &zero
		case snap.Indexed > 0:
			elapsed := now.Sub(snap.StartedAt)
			remaining := time.Duration(int64(elapsed) * int64(snap.Total-snap.Indexed) / int64(snap.Indexed))
			view.EstimatedTimeRemaining = &remaining
		}
	}

	return view
}
