// Package tui renders live council runs in the terminal: a Bubble Tea view
// when stdout is a TTY, and plain progress lines otherwise.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
)

// eventBuffer sizes the channel between a run and the view.
const eventBuffer = 64

// IsTTY returns true if stdout is connected to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Runner drives one session run, emitting events as it goes.
type Runner func(ctx context.Context, emit orchestrator.EmitFunc) error

// RunInfo describes the run being watched.
type RunInfo struct {
	SessionID  string
	Prompt     string
	Iterations int
	Members    []council.Member
	Chair      council.Member
}

// Watch drives runner to completion. On a terminal it shows the live view
// and then prints the final merge to out; otherwise progress lines go to out
// as events arrive. Quitting the view interrupts the run, which pauses the
// session. It returns the run's error.
func Watch(ctx context.Context, info RunInfo, runner Runner, out io.Writer, verbose bool) error {
	if !IsTTY() {
		return NewPrinter(out, info, verbose).Drive(ctx, runner)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan orchestrator.Event, eventBuffer)
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		errc <- runner(ctx, func(e orchestrator.Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
	}()

	final, err := tea.NewProgram(NewRunModel(info, events, errc, cancel), tea.WithAltScreen()).Run()
	m, ok := final.(RunModel)
	if err != nil || !ok || !m.done {
		cancel()
		for range events {
		}
		runErr := <-errc
		if err != nil {
			return fmt.Errorf("running view: %w", err)
		}
		return runErr
	}

	m.printSummary(out)
	return m.err
}
