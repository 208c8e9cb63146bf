package tui

import "github.com/hivecouncil/hivecouncil/internal/orchestrator"

// EventMsg carries one run event into the view.
type EventMsg struct {
	Event orchestrator.Event
}

// RunDoneMsg signals that the run returned.
type RunDoneMsg struct {
	Err error
}
