package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
)

// Printer writes run progress as plain lines, for non-TTY output.
type Printer struct {
	out     io.Writer
	info    RunInfo
	verbose bool

	start     time.Time
	iteration int
	merge     string
	cost      float64
	failures  int
}

// NewPrinter creates a Printer. verbose also prints each council response.
func NewPrinter(out io.Writer, info RunInfo, verbose bool) *Printer {
	return &Printer{out: out, info: info, verbose: verbose, start: time.Now()}
}

// Drive runs runner on the calling goroutine, printing each event as it is
// emitted, then prints the outcome and the final merge.
func (p *Printer) Drive(ctx context.Context, runner Runner) error {
	fmt.Fprintf(p.out, "Session %s: %d members, %d iterations, chair %s\n",
		p.info.SessionID, len(p.info.Members), p.info.Iterations, p.info.Chair.DisplayName())

	err := runner(ctx, p.Handle)
	p.Finish(err)
	return err
}

// Handle prints one event.
func (p *Printer) Handle(e orchestrator.Event) {
	switch e := e.(type) {
	case orchestrator.StatusEvent:
		p.iteration = e.Iteration
		fmt.Fprintf(p.out, "[%d/%d] %s\n", e.Iteration, p.info.Iterations, e.Message)

	case orchestrator.ResponseEvent:
		p.cost += e.Cost
		fmt.Fprintf(p.out, "  ok   %s (%s/%s) %d tokens, $%.6f\n", e.MemberRole, e.Provider, e.Model, e.Tokens.Output, e.Cost)
		if p.verbose {
			fmt.Fprintln(p.out, indent(e.Content))
		}

	case orchestrator.MergeEvent:
		p.cost += e.Cost
		p.merge = e.Content
		fmt.Fprintf(p.out, "  merge %s (%s/%s) iteration %d, %d tokens\n", e.MemberRole, e.Provider, e.Model, e.Iteration, e.Tokens.Output)

	case orchestrator.ErrorEvent:
		if e.Terminal {
			fmt.Fprintf(p.out, "  FATAL %s\n", e.Message)
			return
		}
		p.failures++
		fmt.Fprintf(p.out, "  fail %s: %s\n", e.MemberRole, e.Message)

	case orchestrator.CompleteEvent:
		p.cost = e.TotalCost
	}
}

// Finish prints the outcome line and the final merge.
func (p *Printer) Finish(err error) {
	elapsed := formatDuration(time.Since(p.start))
	switch {
	case err == nil:
		fmt.Fprintf(p.out, "\nDone: %d iterations, $%.4f, %s", p.info.Iterations, p.cost, elapsed)
		if p.failures > 0 {
			fmt.Fprintf(p.out, ", %d member failures", p.failures)
		}
		fmt.Fprintln(p.out)
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(p.out, "\nPaused at iteration %d. Resume with: hivecouncil resume %s\n", p.iteration, p.info.SessionID)
	default:
		fmt.Fprintf(p.out, "\nFailed after %s: %v\n", elapsed, err)
	}

	if p.merge != "" {
		fmt.Fprintf(p.out, "\n%s\n", p.merge)
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "       " + l
	}
	return strings.Join(lines, "\n")
}
