package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
)

// Member states shown in the roster.
const (
	stateWaiting  = "waiting"
	stateThinking = "thinking"
	stateDone     = "done"
	stateFailed   = "failed"
)

// reservedRows is the height taken by everything but the viewport.
const reservedRows = 14

type memberState struct {
	member  council.Member
	state   string
	tokens  int
	cost    float64
	elapsed string
}

// RunModel is the live view of one council run.
type RunModel struct {
	info    RunInfo
	members []memberState
	index   map[string]int // member id -> index in members

	iteration int
	merging   bool
	merges    int
	lines     []string
	merge     string
	showMerge bool
	tokens    int
	cost      float64

	done         bool
	interrupting bool
	err          error

	events <-chan orchestrator.Event
	errc   <-chan error
	cancel context.CancelFunc

	keys      KeyMap
	viewport  viewport.Model
	spinner   spinner.Model
	startTime time.Time
	width     int
	height    int
}

// NewRunModel creates the view for a run whose events arrive on events and
// whose result arrives on errc after events closes. cancel interrupts the run.
func NewRunModel(info RunInfo, events <-chan orchestrator.Event, errc <-chan error, cancel context.CancelFunc) RunModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle

	vp := viewport.New(74, 10)
	vp.SetContent("")

	m := RunModel{
		info:      info,
		index:     make(map[string]int, len(info.Members)),
		events:    events,
		errc:      errc,
		cancel:    cancel,
		keys:      DefaultKeyMap,
		viewport:  vp,
		spinner:   sp,
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
	for i, mem := range info.Members {
		m.index[mem.ID] = i
		m.members = append(m.members, memberState{member: mem, state: stateWaiting})
	}
	return m
}

// Init starts the spinner and the event listener.
func (m RunModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listenCmd(m.events, m.errc))
}

// Update handles messages for the run view.
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case EventMsg:
		m = m.apply(msg.Event)
		return m, listenCmd(m.events, m.errc)

	case RunDoneMsg:
		m.done = true
		m.err = msg.Err
		m.merging = false
		if m.interrupting {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.done {
				return m, tea.Quit
			}
			if !m.interrupting {
				m.interrupting = true
				m = m.log(WarningStyle.Render("Interrupting run..."))
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			m.showMerge = !m.showMerge
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()
			return m, nil
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// apply folds one run event into the model.
func (m RunModel) apply(e orchestrator.Event) RunModel {
	switch e := e.(type) {
	case orchestrator.StatusEvent:
		if e.Iteration > m.iteration {
			m.iteration = e.Iteration
			for i := range m.members {
				m.members[i].state = stateThinking
			}
		}
		m.merging = strings.Contains(strings.ToLower(e.Message), "merging")
		m = m.log(DimStyle.Render("• " + e.Message))

	case orchestrator.ResponseEvent:
		if i, ok := m.index[e.MemberID]; ok {
			st := &m.members[i]
			st.state = stateDone
			st.tokens += e.Tokens.Input + e.Tokens.Output
			st.cost += e.Cost
		}
		m.tokens += e.Tokens.Input + e.Tokens.Output
		m.cost += e.Cost
		m = m.log(fmt.Sprintf("%s %s (%s) %s %d tokens",
			MemberDone, e.MemberRole, e.Model, phaseLabel(e.Kind, e.Iteration), e.Tokens.Output))

	case orchestrator.MergeEvent:
		m.merging = false
		m.merges++
		m.merge = e.Content
		m.tokens += e.Tokens.Input + e.Tokens.Output
		m.cost += e.Cost
		m = m.log(SuccessStyle.Render(fmt.Sprintf("★ Chair %s merged iteration %d", e.MemberRole, e.Iteration)))

	case orchestrator.ErrorEvent:
		if !e.Terminal {
			if i, ok := m.index[e.MemberID]; ok {
				m.members[i].state = stateFailed
			}
		}
		m = m.log(ErrorStyle.Render(MemberFailed + " " + e.Message))

	case orchestrator.CompleteEvent:
		m.cost = e.TotalCost
		m = m.log(SuccessStyle.Render(fmt.Sprintf("Session complete: %d iterations, $%.4f", e.Iterations, e.TotalCost)))
	}
	return m
}

func phaseLabel(kind string, iteration int) string {
	if kind == orchestrator.TypeFeedback {
		return fmt.Sprintf("feedback #%d", iteration)
	}
	return "initial response"
}

func (m RunModel) log(line string) RunModel {
	m.lines = append(m.lines, line)
	m.refresh()
	return m
}

// refresh renders the viewport content for the current tab.
func (m *RunModel) refresh() {
	if m.showMerge {
		content := m.merge
		if content == "" {
			content = DimStyle.Render("No merge yet.")
		}
		m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(content))
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *RunModel) resize() {
	h := m.height - reservedRows - len(m.members)
	if h < 5 {
		h = 5
	}
	w := m.width - 6
	if w < 20 {
		w = 20
	}
	m.viewport.Width = w
	m.viewport.Height = h
}

// View renders the run view.
func (m RunModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("⏺ Council: " + truncate(m.info.Prompt, 60)))
	b.WriteString("\n\n")

	b.WriteString(DimStyle.Render(fmt.Sprintf("Iteration %d/%d", m.iteration, m.info.Iterations)))
	b.WriteString("\n")
	b.WriteString(m.renderProgressBar())
	b.WriteString("\n\n")

	b.WriteString(m.renderRoster())
	b.WriteString("\n")

	label := "[Event log]"
	if m.showMerge {
		label = "[Latest merge]"
	}
	b.WriteString(DimStyle.Render(label))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(DimStyle.Render(fmt.Sprintf("Tokens: %d | Cost: $%.4f | Elapsed: %s",
		m.tokens, m.cost, formatDuration(time.Since(m.startTime)))))
	b.WriteString("\n")

	switch {
	case m.done && m.err == nil:
		b.WriteString("\n" + SuccessStyle.Render("[ COMPLETE ]") + "\n")
	case m.done && errors.Is(m.err, context.Canceled):
		b.WriteString("\n" + WarningStyle.Render("[ PAUSED ] resume with: hivecouncil resume "+m.info.SessionID) + "\n")
	case m.done:
		b.WriteString("\n" + ErrorStyle.Render("[ FAILED ] "+m.err.Error()) + "\n")
	case m.interrupting:
		b.WriteString("\n" + WarningStyle.Render("[ INTERRUPTING ]") + "\n")
	}

	b.WriteString("\n")
	quit := "q: Interrupt"
	if m.done {
		quit = "q: Quit"
	}
	b.WriteString(DimStyle.Render("tab: Log/Merge  ↑/↓: Scroll  " + quit))

	return BoxStyle.Width(m.width - 4).Render(b.String())
}

// renderProgressBar fills one cell per merged iteration.
func (m RunModel) renderProgressBar() string {
	total := m.info.Iterations
	if total == 0 {
		return ""
	}

	barWidth := m.width - 10
	if barWidth < 10 {
		barWidth = 10
	}
	if barWidth > 60 {
		barWidth = 60
	}

	completed := m.merges
	if completed > total {
		completed = total
	}
	fill := completed * barWidth / total

	return ProgressFullStyle.Render(strings.Repeat("█", fill)) +
		ProgressEmptyStyle.Render(strings.Repeat("░", barWidth-fill))
}

func (m RunModel) renderRoster() string {
	var b strings.Builder
	for _, st := range m.members {
		name := st.member.DisplayName()
		if st.member.ID == m.info.Chair.ID {
			name = SelectedStyle.Render(name + " (chair)")
		}
		model := DimStyle.Render(st.member.Provider + "/" + st.member.Model)

		icon := m.statusIcon(st.state)
		line := fmt.Sprintf("%s %s %s", icon, name, model)
		if st.tokens > 0 {
			line += DimStyle.Render(fmt.Sprintf(" (%d tokens, $%.4f)", st.tokens, st.cost))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.merging && !m.done {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), WarningStyle.Render("Chair is merging...")))
	}
	return b.String()
}

func (m RunModel) statusIcon(state string) string {
	switch state {
	case stateDone:
		return MemberDone
	case stateFailed:
		return MemberFailed
	case stateThinking:
		if m.done {
			return MemberWaiting
		}
		return m.spinner.View()
	default:
		return MemberWaiting
	}
}

// printSummary writes the outcome and the final merge after the view exits.
func (m RunModel) printSummary(out io.Writer) {
	switch {
	case m.err == nil:
		fmt.Fprintf(out, "Session %s completed (%d iterations, $%.4f)\n", m.info.SessionID, m.info.Iterations, m.cost)
	case errors.Is(m.err, context.Canceled):
		fmt.Fprintf(out, "Session %s paused at iteration %d. Resume with: hivecouncil resume %s\n", m.info.SessionID, m.iteration, m.info.SessionID)
	default:
		fmt.Fprintf(out, "Session %s failed: %v\n", m.info.SessionID, m.err)
	}
	if m.merge != "" {
		fmt.Fprintf(out, "\n%s\n", m.merge)
	}
}

// formatDuration formats a duration as "Xs" or "Xm Ys".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
