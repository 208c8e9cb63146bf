package orchestrator

import (
	"context"
	"fmt"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/log"
	"github.com/hivecouncil/hivecouncil/internal/session"
)

// RunSession drives a freshly created session through every iteration.
// Events are delivered to emit on the calling goroutine; the last event is
// either a CompleteEvent or a terminal ErrorEvent. The returned error is nil
// only when the session completed.
func (o *Orchestrator) RunSession(ctx context.Context, c *Council, emit EmitFunc) error {
	o.record(log.LogEvent{Event: log.EventSessionStarted, SessionID: c.Session.ID, Data: map[string]interface{}{
		"members":    len(c.members),
		"iterations": c.Session.TotalIterations,
	}})
	return o.finish(ctx, c, emit, o.runForward(ctx, c, emit))
}

func (o *Orchestrator) runForward(ctx context.Context, c *Council, emit EmitFunc) error {
	if err := o.startIteration(ctx, c, 1); err != nil {
		return err
	}
	emit(StatusEvent{Message: "Collecting initial responses from council...", Iteration: 1})

	out := o.collect(ctx, c, emit, 1, o.initialCalls(c, c.members))
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.succeeded == 0 {
		return ErrNoCouncilResponses
	}

	emit(StatusEvent{Message: fmt.Sprintf("Chair (%s) is merging responses...", c.chair.DisplayName()), Iteration: 1})
	merged, err := o.merge(ctx, c, emit, 1, "", out.contributions)
	if err != nil {
		return err
	}

	return o.iterate(ctx, c, emit, 2, merged)
}

// iterate runs feedback and re-merge rounds from iteration `from` through the
// session's total, starting from the merge `merged`.
func (o *Orchestrator) iterate(ctx context.Context, c *Council, emit EmitFunc, from int, merged *session.Response) error {
	total := c.Session.TotalIterations
	for k := from; k <= total; k++ {
		if err := o.startIteration(ctx, c, k); err != nil {
			return err
		}
		emit(StatusEvent{Message: fmt.Sprintf("Starting iteration %d/%d...", k, total), Iteration: k})

		calls, err := o.feedbackCalls(c, c.members, merged.Content)
		if err != nil {
			return err
		}
		out := o.collect(ctx, c, emit, k, calls)
		if err := ctx.Err(); err != nil {
			return err
		}

		emit(StatusEvent{Message: fmt.Sprintf("Chair is merging iteration %d feedback...", k), Iteration: k})
		merged, err = o.merge(ctx, c, emit, k, merged.Content, out.contributions)
		if err != nil {
			return err
		}
	}
	return nil
}

// startIteration persists the iteration about to run.
func (o *Orchestrator) startIteration(ctx context.Context, c *Council, k int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if k > c.Session.CurrentIteration {
		c.Session.CurrentIteration = k
	}
	if err := o.store.UpdateSession(ctx, c.Session); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("update session iteration: %w", err)
	}
	o.record(log.LogEvent{Event: log.EventIterationStarted, SessionID: c.Session.ID, Iteration: k})
	return nil
}

func (o *Orchestrator) initialCalls(c *Council, members []council.Member) []call {
	calls := make([]call, 0, len(members))
	for _, m := range members {
		calls = append(calls, call{member: m, prompt: c.Session.Prompt})
	}
	return calls
}

func (o *Orchestrator) feedbackCalls(c *Council, members []council.Member, merge string) ([]call, error) {
	prompt, err := buildFeedbackPrompt(merge, c.Session.Prompt)
	if err != nil {
		return nil, err
	}
	calls := make([]call, 0, len(members))
	for _, m := range members {
		calls = append(calls, call{member: m, prompt: prompt})
	}
	return calls, nil
}

// ResumeSession continues an interrupted run from state. Only non-chair
// members with no response for state.CurrentIteration are called; the chair
// merges that iteration only if no merge exists for it; later iterations then
// run as in RunSession.
func (o *Orchestrator) ResumeSession(ctx context.Context, c *Council, state *council.ResumeState, emit EmitFunc) error {
	o.record(log.LogEvent{Event: log.EventSessionResumed, SessionID: c.Session.ID, Iteration: state.CurrentIteration})
	return o.finish(ctx, c, emit, o.resume(ctx, c, state, emit))
}

func (o *Orchestrator) resume(ctx context.Context, c *Council, state *council.ResumeState, emit EmitFunc) error {
	k := state.CurrentIteration
	total := c.Session.TotalIterations
	if k < 1 || k > total {
		return fmt.Errorf("resume iteration %d outside 1..%d", k, total)
	}
	c.totalCost = state.TotalCost

	var present []council.ResumeResponse
	for _, r := range state.Responses {
		if r.Iteration == k {
			present = append(present, r)
		}
	}
	existingMerge, hasMerge := latestMerge(state.MergedResponses, k, k)
	previous, hasPrevious := latestMerge(state.MergedResponses, 1, k-1)
	if k > 1 && !hasPrevious {
		return fmt.Errorf("cannot resume iteration %d: no merge from an earlier iteration", k)
	}

	c.Session.Status = session.StatusRunning
	if err := o.startIteration(ctx, c, k); err != nil {
		return err
	}
	emit(StatusEvent{Message: fmt.Sprintf("Resuming session at iteration %d/%d...", k, total), Iteration: k})

	items := make([]contribution, 0, len(present)+len(c.members))
	for _, r := range present {
		items = append(items, o.carried(c, r))
	}

	if !hasMerge {
		missing := missingMembers(c, present)
		if len(missing) > 0 {
			var calls []call
			if k == 1 {
				calls = o.initialCalls(c, missing)
			} else {
				var err error
				calls, err = o.feedbackCalls(c, missing, previous.Content)
				if err != nil {
					return err
				}
			}
			out := o.collect(ctx, c, emit, k, calls)
			if err := ctx.Err(); err != nil {
				return err
			}
			items = append(items, out.contributions...)
		}
		if k == 1 && len(items) == 0 {
			return ErrNoCouncilResponses
		}

		if k == 1 {
			emit(StatusEvent{Message: fmt.Sprintf("Chair (%s) is merging responses...", c.chair.DisplayName()), Iteration: k})
		} else {
			emit(StatusEvent{Message: fmt.Sprintf("Chair is merging iteration %d feedback...", k), Iteration: k})
		}
		merged, err := o.merge(ctx, c, emit, k, previous.Content, items)
		if err != nil {
			return err
		}
		existingMerge = council.ResumeResponse{Content: merged.Content, Iteration: k}
	}

	return o.iterate(ctx, c, emit, k+1, &session.Response{Content: existingMerge.Content, Iteration: k})
}

// carried turns a response from the resume state into merge input.
func (o *Orchestrator) carried(c *Council, r council.ResumeResponse) contribution {
	role, prov := r.MemberRole, r.Provider
	if m, ok := c.member(r.MemberID); ok {
		role, prov = m.DisplayName(), m.Provider
	}
	if role == "" {
		role = prov
	}
	return contribution{role: role, provider: prov, content: r.Content}
}

// missingMembers returns non-chair members with no response in present.
// A response without a member id counts for a member only when that member
// is the sole non-chair member on the response's provider; otherwise it is
// left unattributed and every member on the provider is still asked.
func missingMembers(c *Council, present []council.ResumeResponse) []council.Member {
	perProvider := make(map[string]int)
	for _, m := range c.members {
		if m.ID != c.chair.ID {
			perProvider[m.Provider]++
		}
	}

	byID := make(map[string]bool, len(present))
	byProvider := make(map[string]bool, len(present))
	for _, r := range present {
		switch {
		case r.MemberID != "":
			byID[r.MemberID] = true
		case perProvider[r.Provider] == 1:
			byProvider[r.Provider] = true
		}
	}

	var missing []council.Member
	for _, m := range c.members {
		if m.ID == c.chair.ID {
			continue
		}
		if byID[m.ID] || byProvider[m.Provider] {
			continue
		}
		missing = append(missing, m)
	}
	return missing
}

// latestMerge returns the merge with the highest iteration in [lo, hi].
func latestMerge(merges []council.ResumeResponse, lo, hi int) (council.ResumeResponse, bool) {
	var best council.ResumeResponse
	found := false
	for _, m := range merges {
		if m.Iteration < lo || m.Iteration > hi {
			continue
		}
		if !found || m.Iteration >= best.Iteration {
			best = m
			found = true
		}
	}
	return best, found
}

// ResponseReader reads persisted responses. *session.Store implements it.
type ResponseReader interface {
	GetResponses(ctx context.Context, sessionID string) ([]session.Response, error)
}

// ResumeStateFromStore rebuilds the resume state of a stored session from
// its persisted responses.
func ResumeStateFromStore(ctx context.Context, r ResponseReader, sess *session.Session) (*council.ResumeState, error) {
	responses, err := r.GetResponses(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}

	roles := make(map[string]string, len(sess.Members))
	for _, m := range sess.Members {
		roles[m.ID] = m.DisplayName()
	}

	state := &council.ResumeState{CurrentIteration: sess.CurrentIteration}
	if state.CurrentIteration < 1 {
		state.CurrentIteration = 1
	}
	for _, resp := range responses {
		rr := council.ResumeResponse{
			MemberID:   resp.MemberID,
			MemberRole: roles[resp.MemberID],
			Provider:   resp.Provider,
			Model:      resp.Model,
			Iteration:  resp.Iteration,
			Content:    resp.Content,
			Cost:       resp.EstimatedCost,
		}
		state.TotalCost += resp.EstimatedCost
		if resp.Role == session.RoleChair {
			state.MergedResponses = append(state.MergedResponses, rr)
		} else {
			state.Responses = append(state.Responses, rr)
		}
	}
	return state, nil
}
