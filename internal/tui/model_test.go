package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
	"github.com/hivecouncil/hivecouncil/internal/testutil"
)

func testInfo() RunInfo {
	members := testutil.Roster("openai", "google", "anthropic")
	return RunInfo{
		SessionID:  "s-1",
		Prompt:     "Design a rate limiter",
		Iterations: 2,
		Members:    members,
		Chair:      members[0],
	}
}

func update(t *testing.T, m RunModel, msg tea.Msg) (RunModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	rm, ok := next.(RunModel)
	if !ok {
		t.Fatalf("Update returned %T, want RunModel", next)
	}
	return rm, cmd
}

func TestRunModelAppliesEvents(t *testing.T) {
	events := make(chan orchestrator.Event)
	m := NewRunModel(testInfo(), events, make(chan error, 1), nil)

	for _, e := range []orchestrator.Event{
		orchestrator.StatusEvent{Message: "Collecting initial responses from council...", Iteration: 1},
		orchestrator.ResponseEvent{Kind: orchestrator.TypeInitialResponse, MemberID: "m2", MemberRole: "Member 2", Model: "google-model-2", Iteration: 1, Tokens: orchestrator.Tokens{Input: 10, Output: 20}, Cost: 0.5},
		orchestrator.ErrorEvent{MemberID: "m3", MemberRole: "Member 3", Iteration: 1, Message: "Failed to get response: boom"},
		orchestrator.StatusEvent{Message: "Chair (Member 1) is merging responses...", Iteration: 1},
		orchestrator.MergeEvent{MemberID: "m1", MemberRole: "Member 1", Iteration: 1, Content: "merged text", Cost: 0.25},
	} {
		m, _ = update(t, m, EventMsg{Event: e})
	}

	tests := []struct {
		id   string
		want string
	}{
		{"m1", stateThinking},
		{"m2", stateDone},
		{"m3", stateFailed},
	}
	for _, tt := range tests {
		if got := m.members[m.index[tt.id]].state; got != tt.want {
			t.Errorf("member %s state = %q, want %q", tt.id, got, tt.want)
		}
	}

	if m.iteration != 1 {
		t.Errorf("iteration = %d, want 1", m.iteration)
	}
	if m.merges != 1 || m.merge != "merged text" {
		t.Errorf("merges = %d, merge = %q; want 1, %q", m.merges, m.merge, "merged text")
	}
	if m.merging {
		t.Error("still merging after merge event")
	}
	if m.cost != 0.75 {
		t.Errorf("cost = %v, want 0.75", m.cost)
	}
	if m.tokens != 30 {
		t.Errorf("tokens = %d, want 30", m.tokens)
	}
	if len(m.lines) != 5 {
		t.Errorf("log lines = %d, want 5", len(m.lines))
	}

	m, _ = update(t, m, EventMsg{Event: orchestrator.StatusEvent{Message: "Starting iteration 2/2...", Iteration: 2}})
	if got := m.members[m.index["m3"]].state; got != stateThinking {
		t.Errorf("member m3 state after new iteration = %q, want %q", got, stateThinking)
	}

	m, cmd := update(t, m, RunDoneMsg{})
	if !m.done || cmd != nil {
		t.Errorf("done = %v, cmd = %v; want done without quitting", m.done, cmd)
	}
	if view := m.View(); !strings.Contains(view, "COMPLETE") {
		t.Errorf("view does not show completion:\n%s", view)
	}
}

func TestRunModelQuitInterruptsThenExits(t *testing.T) {
	cancelled := 0
	m := NewRunModel(testInfo(), make(chan orchestrator.Event), make(chan error, 1), func() { cancelled++ })

	q := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
	m, cmd := update(t, m, q)
	if cmd != nil {
		t.Error("first quit returned a command, want the view to stay up")
	}
	if !m.interrupting || cancelled != 1 {
		t.Fatalf("interrupting = %v, cancelled = %d; want true, 1", m.interrupting, cancelled)
	}

	m, _ = update(t, m, q)
	if cancelled != 1 {
		t.Errorf("cancelled = %d after second quit, want 1", cancelled)
	}

	m, cmd = update(t, m, RunDoneMsg{Err: context.Canceled})
	if cmd == nil {
		t.Fatal("RunDoneMsg while interrupting returned no command, want quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("command returned %T, want tea.QuitMsg", cmd())
	}
	if !errors.Is(m.err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", m.err)
	}
	if view := m.View(); !strings.Contains(view, "hivecouncil resume s-1") {
		t.Errorf("paused view has no resume hint:\n%s", view)
	}
}

func TestRunModelToggleShowsMerge(t *testing.T) {
	m := NewRunModel(testInfo(), make(chan orchestrator.Event), make(chan error, 1), nil)
	m, _ = update(t, m, EventMsg{Event: orchestrator.MergeEvent{MemberRole: "Member 1", Iteration: 1, Content: "the final plan"}})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if !m.showMerge {
		t.Fatal("tab did not switch to the merge tab")
	}
	if view := m.viewport.View(); !strings.Contains(view, "the final plan") {
		t.Errorf("viewport = %q, want the merge", view)
	}
}

func TestListenCmd(t *testing.T) {
	events := make(chan orchestrator.Event, 1)
	errc := make(chan error, 1)

	events <- orchestrator.StatusEvent{Message: "hi", Iteration: 1}
	msg := listenCmd(events, errc)()
	if ev, ok := msg.(EventMsg); !ok || ev.Event.Type() != orchestrator.TypeStatus {
		t.Fatalf("got %#v, want status EventMsg", msg)
	}

	boom := errors.New("boom")
	close(events)
	errc <- boom
	msg = listenCmd(events, errc)()
	done, ok := msg.(RunDoneMsg)
	if !ok || !errors.Is(done.Err, boom) {
		t.Fatalf("got %#v, want RunDoneMsg with boom", msg)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"multi\nline   text", 20, "multi line text"},
		{"abcdefghij", 5, "abcd…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
