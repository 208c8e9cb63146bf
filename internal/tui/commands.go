package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
)

// listenCmd waits for the next run event. Once the channel closes it
// returns RunDoneMsg with the run's error.
func listenCmd(events <-chan orchestrator.Event, errc <-chan error) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return RunDoneMsg{Err: <-errc}
		}
		return EventMsg{Event: e}
	}
}
