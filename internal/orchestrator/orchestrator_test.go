package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/log"
	"github.com/hivecouncil/hivecouncil/internal/provider"
	"github.com/hivecouncil/hivecouncil/internal/session"
	"github.com/hivecouncil/hivecouncil/internal/testutil"
)

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	sessions  map[string]session.Session
	responses []session.Response
	failAdd   func(*session.Response) error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]session.Session)}
}

func (s *memStore) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *memStore) UpdateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *memStore) AddResponse(_ context.Context, r *session.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd != nil {
		if err := s.failAdd(r); err != nil {
			return err
		}
	}
	r.ID = uuid.New().String()
	s.responses = append(s.responses, *r)
	return nil
}

func (s *memStore) GetResponses(_ context.Context, id string) ([]session.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Response
	for _, r := range s.responses {
		if r.SessionID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) status(id string) session.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].Status
}

// count returns the number of responses with role at iteration (0 = any).
func (s *memStore) count(role string, iteration int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.responses {
		if r.Role == role && (iteration == 0 || r.Iteration == iteration) {
			n++
		}
	}
	return n
}

// recorder collects emitted events.
type recorder struct {
	events []Event
}

func (r *recorder) emit(e Event) { r.events = append(r.events, e) }

func (r *recorder) errors() (scoped, terminal []ErrorEvent) {
	for _, e := range r.events {
		if ev, ok := e.(ErrorEvent); ok {
			if ev.Terminal {
				terminal = append(terminal, ev)
			} else {
				scoped = append(scoped, ev)
			}
		}
	}
	return scoped, terminal
}

func (r *recorder) last() Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func isMergePrompt(req provider.Request) bool {
	return strings.Contains(req.Prompt, "As the chair")
}

func setup(t *testing.T, providers ...provider.Provider) (*Orchestrator, *memStore) {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	store := newMemStore()
	return New(store, reg), store
}

func TestScenarioSingleIterationThreeMembers(t *testing.T) {
	a := testutil.NewFakeProvider(provider.Anthropic)
	b := testutil.NewFakeProvider(provider.OpenAI)
	c := testutil.NewFakeProvider(provider.Google)
	o, store := setup(t, a, b, c)

	cfg := testutil.CouncilConfig("Name three colours", 1, testutil.Roster(provider.Anthropic, provider.OpenAI, provider.Google))
	run, err := o.CreateSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rec := &recorder{}
	if err := o.RunSession(context.Background(), run, rec.emit); err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	if got := store.count(session.RoleCouncil, 1); got != 3 {
		t.Errorf("council responses = %d, want 3", got)
	}
	if got := store.count(session.RoleChair, 1); got != 1 {
		t.Errorf("chair responses = %d, want 1", got)
	}
	done, ok := rec.last().(CompleteEvent)
	if !ok {
		t.Fatalf("last event = %#v, want CompleteEvent", rec.last())
	}
	if done.SessionID != run.Session.ID {
		t.Errorf("complete session_id = %q, want %q", done.SessionID, run.Session.ID)
	}
	if got := store.status(run.Session.ID); got != session.StatusCompleted {
		t.Errorf("status = %q, want completed", got)
	}
}

func TestBlankModelPersistsProviderDefault(t *testing.T) {
	local := testutil.NewFakeProvider(provider.Ollama).WithDefaultModel("llama3")
	o, store := setup(t, local)

	members := testutil.Roster(provider.Ollama, provider.Ollama)
	for i := range members {
		members[i].Model = ""
	}
	run, err := o.CreateSession(context.Background(), testutil.CouncilConfig("Pick a name", 1, members))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := o.RunSession(context.Background(), run, func(Event) {}); err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	if got := local.CallsFor("llama3"); got != 3 {
		t.Errorf("calls for llama3 = %d, want 3", got)
	}
	responses, _ := store.GetResponses(context.Background(), run.Session.ID)
	if len(responses) != 3 {
		t.Fatalf("responses = %d, want 3", len(responses))
	}
	for _, r := range responses {
		if r.Model != "llama3" {
			t.Errorf("%s response for %s model = %q, want %q", r.Role, r.MemberID, r.Model, "llama3")
		}
	}
}

func TestScenarioFailingMemberEveryIteration(t *testing.T) {
	chair := testutil.NewFakeProvider(provider.Anthropic)
	broken := testutil.NewFakeProvider(provider.OpenAI).
		On("openai-model-2", testutil.Script{Err: &provider.Error{Kind: provider.KindAuthFailed, Provider: provider.OpenAI, Message: "bad key"}})
	o, store := setup(t, chair, broken)

	cfg := testutil.CouncilConfig("Write a haiku", 3, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, err := o.CreateSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rec := &recorder{}
	if err := o.RunSession(context.Background(), run, rec.emit); err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	for k := 1; k <= 3; k++ {
		if got := store.count(session.RoleCouncil, k); got != 1 {
			t.Errorf("iteration %d council responses = %d, want 1", k, got)
		}
		if got := store.count(session.RoleChair, k); got != 1 {
			t.Errorf("iteration %d chair responses = %d, want 1", k, got)
		}
	}

	scoped, terminal := rec.errors()
	if len(scoped) != 3 {
		t.Fatalf("scoped errors = %d, want 3", len(scoped))
	}
	if len(terminal) != 0 {
		t.Errorf("terminal errors = %d, want 0", len(terminal))
	}
	if scoped[0].MemberID != "m2" || scoped[0].Kind != string(provider.KindAuthFailed) {
		t.Errorf("scoped error = %+v", scoped[0])
	}
	if !strings.HasPrefix(scoped[0].Message, "Failed to get response: ") {
		t.Errorf("iteration 1 message = %q", scoped[0].Message)
	}
	if !strings.HasPrefix(scoped[1].Message, "Failed to get feedback: ") {
		t.Errorf("iteration 2 message = %q", scoped[1].Message)
	}
	if got := store.status(run.Session.ID); got != session.StatusCompleted {
		t.Errorf("status = %q, want completed", got)
	}
}

func TestScenarioChairFailsOnSecondMerge(t *testing.T) {
	merges := 0
	chair := testutil.NewFakeProvider(provider.Anthropic).
		On("anthropic-model-1", testutil.Script{Respond: func(req provider.Request) (string, error) {
			if !strings.Contains(req.Prompt, "ACTUAL IMPROVED VERSION") && !isMergePrompt(req) {
				return "chair feedback", nil
			}
			merges++
			if merges == 2 {
				return "", &provider.Error{Kind: provider.KindServiceUnavailable, Provider: provider.Anthropic, Message: "overloaded"}
			}
			return "merged draft", nil
		}})
	member := testutil.NewFakeProvider(provider.OpenAI)
	o, store := setup(t, chair, member)

	cfg := testutil.CouncilConfig("Plan a trip", 3, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)

	rec := &recorder{}
	err := o.RunSession(context.Background(), run, rec.emit)

	var chairErr *ChairError
	if !errors.As(err, &chairErr) {
		t.Fatalf("RunSession err = %v, want *ChairError", err)
	}
	if chairErr.Iteration != 2 {
		t.Errorf("ChairError.Iteration = %d, want 2", chairErr.Iteration)
	}
	if got := store.status(run.Session.ID); got != session.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
	if got := store.count(session.RoleCouncil, 1); got != 2 {
		t.Errorf("iteration 1 council responses = %d, want 2", got)
	}
	if got := store.count(session.RoleChair, 1); got != 1 {
		t.Errorf("iteration 1 chair responses = %d, want 1", got)
	}
	if got := store.count(session.RoleCouncil, 2); got != 2 {
		t.Errorf("iteration 2 feedback responses = %d, want 2", got)
	}
	if got := store.count(session.RoleChair, 2); got != 0 {
		t.Errorf("iteration 2 chair responses = %d, want 0", got)
	}

	_, terminal := rec.errors()
	if len(terminal) != 1 {
		t.Fatalf("terminal errors = %d, want 1", len(terminal))
	}
	if !strings.HasPrefix(terminal[0].Message, "Chair failed to create merge: ") {
		t.Errorf("terminal message = %q", terminal[0].Message)
	}
	if rec.last() != Event(terminal[0]) {
		t.Error("terminal error is not the last event")
	}
}

func TestScenarioResumeCallsOnlyMissingMember(t *testing.T) {
	chair := testutil.NewFakeProvider(provider.Anthropic)
	second := testutil.NewFakeProvider(provider.OpenAI)
	third := testutil.NewFakeProvider(provider.Google)
	o, store := setup(t, chair, second, third)

	cfg := testutil.CouncilConfig("Review this design", 2, testutil.Roster(provider.Anthropic, provider.OpenAI, provider.Google))
	run, _ := o.CreateSession(context.Background(), cfg)

	state := &council.ResumeState{
		CurrentIteration: 2,
		Responses: []council.ResumeResponse{
			{MemberID: "m1", Provider: provider.Anthropic, Iteration: 1, Content: "a1"},
			{MemberID: "m2", Provider: provider.OpenAI, Iteration: 1, Content: "b1"},
			{MemberID: "m3", Provider: provider.Google, Iteration: 1, Content: "c1"},
			{MemberID: "m1", Provider: provider.Anthropic, Iteration: 2, Content: "a2"},
			{MemberID: "m2", Provider: provider.OpenAI, Iteration: 2, Content: "b2"},
		},
		MergedResponses: []council.ResumeResponse{
			{MemberID: "m1", Provider: provider.Anthropic, Iteration: 1, Content: "first merge"},
		},
	}

	rec := &recorder{}
	if err := o.ResumeSession(context.Background(), run, state, rec.emit); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}

	if got := len(third.Calls()); got != 1 {
		t.Errorf("calls to missing member = %d, want 1", got)
	}
	if got := len(second.Calls()); got != 0 {
		t.Errorf("calls to answered member = %d, want 0", got)
	}
	chairCalls := chair.Calls()
	if len(chairCalls) != 1 || !strings.Contains(chairCalls[0].Prompt, "first merge") {
		t.Fatalf("chair calls = %d, want one merge over the previous merge", len(chairCalls))
	}
	for _, want := range []string{"a2", "b2", "answer from google-model-3"} {
		if !strings.Contains(chairCalls[0].Prompt, want) {
			t.Errorf("merge prompt missing %q", want)
		}
	}
	if !strings.Contains(third.Calls()[0].Prompt, "first merge") {
		t.Error("missing member was not asked for feedback on the previous merge")
	}
	if got := store.count(session.RoleChair, 2); got != 1 {
		t.Errorf("iteration 2 chair responses = %d, want 1", got)
	}
	if _, ok := rec.last().(CompleteEvent); !ok {
		t.Errorf("last event = %#v, want CompleteEvent", rec.last())
	}
}

func TestResumeUnattributedResponseWithSharedProvider(t *testing.T) {
	local := testutil.NewFakeProvider(provider.Ollama)
	o, _ := setup(t, local)

	members := testutil.Roster(provider.Ollama, provider.Ollama, provider.Ollama)
	for i, model := range []string{"a", "b", "c"} {
		members[i].Model = model
	}
	run, _ := o.CreateSession(context.Background(), testutil.CouncilConfig("Compare", 1, members))

	state := &council.ResumeState{
		CurrentIteration: 1,
		Responses: []council.ResumeResponse{
			{Provider: provider.Ollama, Iteration: 1, Content: "someone answered"},
		},
	}
	if err := o.ResumeSession(context.Background(), run, state, func(Event) {}); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	for _, model := range []string{"b", "c"} {
		if got := local.CallsFor(model); got != 1 {
			t.Errorf("calls for %s = %d, want 1", model, got)
		}
	}
}

func TestResumeUnattributedResponseWithSoleProvider(t *testing.T) {
	chair := testutil.NewFakeProvider(provider.Anthropic)
	member := testutil.NewFakeProvider(provider.OpenAI)
	o, _ := setup(t, chair, member)

	cfg := testutil.CouncilConfig("Compare", 1, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)

	state := &council.ResumeState{
		CurrentIteration: 1,
		Responses: []council.ResumeResponse{
			{Provider: provider.OpenAI, Iteration: 1, Content: "legacy row"},
		},
	}
	if err := o.ResumeSession(context.Background(), run, state, func(Event) {}); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if got := len(member.Calls()); got != 0 {
		t.Errorf("member calls = %d, want 0", got)
	}
}

func TestResumeWithCompleteIterationSkipsCollection(t *testing.T) {
	chair := testutil.NewFakeProvider(provider.Anthropic)
	member := testutil.NewFakeProvider(provider.OpenAI)
	o, _ := setup(t, chair, member)

	cfg := testutil.CouncilConfig("Summarise", 1, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)

	state := &council.ResumeState{
		CurrentIteration: 1,
		Responses: []council.ResumeResponse{
			{MemberID: "m2", Provider: provider.OpenAI, Iteration: 1, Content: "done already"},
		},
	}
	if err := o.ResumeSession(context.Background(), run, state, func(Event) {}); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if got := len(member.Calls()); got != 0 {
		t.Errorf("member calls = %d, want 0", got)
	}
	if got := len(chair.Calls()); got != 1 {
		t.Errorf("chair calls = %d, want 1 (merge only)", got)
	}
}

func TestResumeWithExistingMergeMakesNoCalls(t *testing.T) {
	chair := testutil.NewFakeProvider(provider.Anthropic)
	member := testutil.NewFakeProvider(provider.OpenAI)
	o, store := setup(t, chair, member)

	cfg := testutil.CouncilConfig("Summarise", 1, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)

	state := &council.ResumeState{
		CurrentIteration: 1,
		MergedResponses:  []council.ResumeResponse{{Provider: provider.Anthropic, Iteration: 1, Content: "final"}},
	}
	if err := o.ResumeSession(context.Background(), run, state, func(Event) {}); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if n := len(chair.Calls()) + len(member.Calls()); n != 0 {
		t.Errorf("provider calls = %d, want 0", n)
	}
	if got := store.status(run.Session.ID); got != session.StatusCompleted {
		t.Errorf("status = %q, want completed", got)
	}
}

func TestResumeWithoutPreviousMergeFails(t *testing.T) {
	o, store := setup(t, testutil.NewFakeProvider(provider.Anthropic))

	cfg := testutil.CouncilConfig("x", 3, testutil.Roster(provider.Anthropic))
	run, _ := o.CreateSession(context.Background(), cfg)

	rec := &recorder{}
	err := o.ResumeSession(context.Background(), run, &council.ResumeState{CurrentIteration: 2}, rec.emit)
	if err == nil {
		t.Fatal("expected error resuming without a previous merge")
	}
	if got := store.status(run.Session.ID); got != session.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
	if _, terminal := rec.errors(); len(terminal) != 1 {
		t.Errorf("terminal errors = %d, want 1", len(terminal))
	}
}

func TestAllMembersFailMarksSessionFailed(t *testing.T) {
	fail := testutil.Script{Err: errors.New("connection refused")}
	a := testutil.NewFakeProvider(provider.Anthropic).On("anthropic-model-1", fail)
	b := testutil.NewFakeProvider(provider.OpenAI).On("openai-model-2", fail)
	o, store := setup(t, a, b)

	cfg := testutil.CouncilConfig("x", 2, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)

	rec := &recorder{}
	err := o.RunSession(context.Background(), run, rec.emit)
	if !errors.Is(err, ErrNoCouncilResponses) {
		t.Fatalf("err = %v, want ErrNoCouncilResponses", err)
	}
	if got := store.status(run.Session.ID); got != session.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
	if got := store.count(session.RoleChair, 0); got != 0 {
		t.Errorf("chair responses = %d, want 0", got)
	}
	scoped, terminal := rec.errors()
	if len(scoped) != 2 || len(terminal) != 1 {
		t.Errorf("scoped=%d terminal=%d, want 2 and 1", len(scoped), len(terminal))
	}
}

func TestUnconfiguredChairIsTerminal(t *testing.T) {
	o, store := setup(t, testutil.NewFakeProvider(provider.OpenAI))

	cfg := testutil.CouncilConfig("x", 1, testutil.Roster(provider.Grok, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)

	rec := &recorder{}
	err := o.RunSession(context.Background(), run, rec.emit)
	var chairErr *ChairError
	if !errors.As(err, &chairErr) {
		t.Fatalf("err = %v, want *ChairError", err)
	}
	scoped, _ := rec.errors()
	if len(scoped) != 1 || scoped[0].Provider != provider.Grok {
		t.Errorf("scoped errors = %+v, want one for the unconfigured grok member", scoped)
	}
	if got := store.status(run.Session.ID); got != session.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
}

func TestIterationsAreMonotonic(t *testing.T) {
	o, _ := setup(t,
		testutil.NewFakeProvider(provider.Anthropic),
		testutil.NewFakeProvider(provider.OpenAI),
		testutil.NewFakeProvider(provider.Google).On("google-model-3", testutil.Script{Delay: 5 * time.Millisecond}),
	)

	cfg := testutil.CouncilConfig("x", 4, testutil.Roster(provider.Anthropic, provider.OpenAI, provider.Google))
	run, _ := o.CreateSession(context.Background(), cfg)

	rec := &recorder{}
	if err := o.RunSession(context.Background(), run, rec.emit); err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	last := 0
	merges := 0
	for _, e := range rec.events {
		var it int
		switch ev := e.(type) {
		case ResponseEvent:
			it = ev.Iteration
			if (it == 1) != (ev.Type() == TypeInitialResponse) {
				t.Errorf("iteration %d event type = %q", it, ev.Type())
			}
		case MergeEvent:
			it = ev.Iteration
			merges++
		default:
			continue
		}
		if it < last || it > 4 {
			t.Fatalf("iteration %d after %d (total 4)", it, last)
		}
		last = it
	}
	if merges != 4 {
		t.Errorf("merges = %d, want 4", merges)
	}
	if run.Session.CurrentIteration != 4 {
		t.Errorf("CurrentIteration = %d, want 4", run.Session.CurrentIteration)
	}
}

func TestCancellationPausesSession(t *testing.T) {
	slow := testutil.Script{Delay: time.Minute}
	o, store := setup(t,
		testutil.NewFakeProvider(provider.Anthropic).On("anthropic-model-1", slow),
		testutil.NewFakeProvider(provider.OpenAI).On("openai-model-2", slow),
	)

	cfg := testutil.CouncilConfig("x", 2, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	rec := &recorder{}
	err := o.RunSession(ctx, run, rec.emit)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline exceeded", err)
	}
	if got := store.status(run.Session.ID); got != session.StatusPaused {
		t.Errorf("status = %q, want paused", got)
	}
	scoped, terminal := rec.errors()
	if len(scoped) != 0 {
		t.Errorf("scoped errors after cancellation = %d, want 0", len(scoped))
	}
	if len(terminal) != 1 || terminal[0].Message != "session interrupted" {
		t.Errorf("terminal = %+v, want one 'session interrupted'", terminal)
	}
}

func TestPersonalityAndFileContextReachProviders(t *testing.T) {
	chair := testutil.NewFakeProvider(provider.Anthropic).WithVision()
	member := testutil.NewFakeProvider(provider.OpenAI)
	o, _ := setup(t, chair, member)

	members := testutil.Roster(provider.Anthropic, provider.OpenAI)
	members[1].Archetype = "critic"
	members[1].CustomPersonality = "  Be brief.  "
	cfg := testutil.CouncilConfig("Assess the plan", 1, members)
	cfg.Files = []council.Attachment{
		{Filename: "plan.txt", ExtractedText: "Step one."},
		{Filename: "chart.png", Base64Data: "iVBORw0KGgo="},
	}

	run, _ := o.CreateSession(context.Background(), cfg)
	if err := o.RunSession(context.Background(), run, func(Event) {}); err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	req := member.Calls()[0]
	want := council.SystemPrompt("critic", "") + "\n\nAdditional personality guidance: Be brief."
	if req.SystemPrompt != want {
		t.Errorf("SystemPrompt = %q, want %q", req.SystemPrompt, want)
	}
	if req.Prompt != "=== File: plan.txt ===\nStep one.\n\nAssess the plan" {
		t.Errorf("Prompt = %q", req.Prompt)
	}
	if req.Image != "" {
		t.Error("image sent to a model without vision support")
	}
	if chair.Calls()[0].Image == "" {
		t.Error("image not sent to vision-capable chair")
	}
}

func TestSystemPromptOverrideReplacesPersonalities(t *testing.T) {
	member := testutil.NewFakeProvider(provider.OpenAI)
	o, _ := setup(t, testutil.NewFakeProvider(provider.Anthropic), member)

	cfg := testutil.CouncilConfig("x", 1, testutil.Roster(provider.Anthropic, provider.OpenAI))
	cfg.SystemPrompt = "You are terse."
	run, _ := o.CreateSession(context.Background(), cfg)
	_ = o.RunSession(context.Background(), run, func(Event) {})

	if got := member.Calls()[0].SystemPrompt; got != "You are terse." {
		t.Errorf("SystemPrompt = %q, want override", got)
	}
}

func TestResponsePersistenceFailureIsScoped(t *testing.T) {
	o, store := setup(t, testutil.NewFakeProvider(provider.Anthropic), testutil.NewFakeProvider(provider.OpenAI))
	store.failAdd = func(r *session.Response) error {
		if r.MemberID == "m2" && r.Role == session.RoleCouncil {
			return errors.New("disk full")
		}
		return nil
	}

	cfg := testutil.CouncilConfig("x", 1, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)

	rec := &recorder{}
	if err := o.RunSession(context.Background(), run, rec.emit); err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	scoped, _ := rec.errors()
	if len(scoped) != 1 || !strings.Contains(scoped[0].Message, "Failed to save response") {
		t.Errorf("scoped = %+v", scoped)
	}
}

func TestJournalRecordsMemberFailures(t *testing.T) {
	journal, err := log.NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := provider.NewRegistry()
	reg.Register(testutil.NewFakeProvider(provider.Anthropic))
	reg.Register(testutil.NewFakeProvider(provider.OpenAI).On("openai-model-2", testutil.Script{Err: errors.New("boom")}))
	o := New(newMemStore(), reg, WithJournal(journal))

	cfg := testutil.CouncilConfig("x", 1, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)
	_ = o.RunSession(context.Background(), run, func(Event) {})

	events, err := journal.ReadSession(run.Session.ID)
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Event)
	}
	joined := strings.Join(kinds, ",")
	for _, want := range []string{log.EventSessionStarted, log.EventMemberFailed, log.EventMergeCompleted, log.EventSessionCompleted} {
		if !strings.Contains(joined, want) {
			t.Errorf("journal %q missing %q", joined, want)
		}
	}
}

func TestResumeStateFromStore(t *testing.T) {
	o, store := setup(t, testutil.NewFakeProvider(provider.Anthropic), testutil.NewFakeProvider(provider.OpenAI))

	cfg := testutil.CouncilConfig("x", 2, testutil.Roster(provider.Anthropic, provider.OpenAI))
	run, _ := o.CreateSession(context.Background(), cfg)
	if err := o.RunSession(context.Background(), run, func(Event) {}); err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	state, err := ResumeStateFromStore(context.Background(), store, run.Session)
	if err != nil {
		t.Fatalf("ResumeStateFromStore: %v", err)
	}
	if state.CurrentIteration != 2 {
		t.Errorf("CurrentIteration = %d, want 2", state.CurrentIteration)
	}
	if len(state.Responses) != 4 || len(state.MergedResponses) != 2 {
		t.Errorf("responses=%d merges=%d, want 4 and 2", len(state.Responses), len(state.MergedResponses))
	}
	if state.Responses[0].MemberRole == "" {
		t.Error("member role not filled from roster")
	}
}

func TestEventJSONShape(t *testing.T) {
	data, err := json.Marshal(ResponseEvent{Kind: TypeFeedback, Provider: "openai", MemberID: "m2", Iteration: 2, Tokens: Tokens{Input: 3, Output: 4}, Done: true})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	_ = json.Unmarshal(data, &got)
	if got["type"] != "feedback" || got["member_id"] != "m2" || got["done"] != true {
		t.Errorf("json = %s", data)
	}
	if _, ok := got["Kind"]; ok {
		t.Error("Kind leaked into JSON")
	}

	data, _ = json.Marshal(ErrorEvent{Message: "session interrupted", Terminal: true})
	if !strings.Contains(string(data), `"type":"error"`) || !strings.Contains(string(data), `"terminal":true`) {
		t.Errorf("json = %s", data)
	}
	if !IsTerminal(CompleteEvent{}) || IsTerminal(ErrorEvent{}) || !IsTerminal(ErrorEvent{Terminal: true}) {
		t.Error("IsTerminal misclassifies events")
	}
}
