package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/log"
	"github.com/hivecouncil/hivecouncil/internal/observability"
	"github.com/hivecouncil/hivecouncil/internal/provider"
	"github.com/hivecouncil/hivecouncil/internal/session"
)

// Phases label provider calls in metrics and the journal.
const (
	phaseInitial  = "initial"
	phaseFeedback = "feedback"
	phaseMerge    = "merge"
)

// call is one unit of fan-out work.
type call struct {
	member council.Member
	prompt string
}

// result is what a worker hands back to the orchestrating goroutine.
type result struct {
	member       council.Member
	model        string
	content      string
	inputTokens  int
	outputTokens int
	cost         float64
	elapsed      time.Duration
	err          error
}

// phaseOutcome is the fan-in of one council phase.
type phaseOutcome struct {
	contributions []contribution
	succeeded     int
	failed        int
}

// fanOut starts one goroutine per call and returns a channel delivering
// results in completion order. The channel is closed once every call has
// returned, so ranging over it is the phase barrier.
func (o *Orchestrator) fanOut(ctx context.Context, c *Council, phase string, calls []call) <-chan result {
	results := make(chan result, len(calls))

	var g errgroup.Group
	for _, cl := range calls {
		g.Go(func() error {
			results <- o.invoke(ctx, c, phase, cl.member, cl.prompt)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	return results
}

// invoke performs one provider call and buffers the streamed reply.
func (o *Orchestrator) invoke(ctx context.Context, c *Council, phase string, m council.Member, prompt string) result {
	res := result{member: m, model: m.Model}

	p, ok := o.providers.Resolve(m.Provider)
	if !ok {
		res.err = fmt.Errorf("provider %q is not configured", m.Provider)
		observability.RecordProviderCall(m.Provider, phase, "not_configured", 0, 0, 0)
		return res
	}

	res.model = p.ResolveModel(m.Model)
	fullPrompt := withFiles(c.fileContext, prompt)
	req := provider.Request{
		Model:        res.model,
		Prompt:       fullPrompt,
		SystemPrompt: c.personalities[m.ID],
		Temperature:  c.temperature,
		MaxTokens:    o.maxTokens,
	}
	if c.image != "" && p.SupportsVision(res.model) {
		req.Image = c.image
	}

	start := time.Now()
	var buf strings.Builder
	err := p.StreamCompletion(ctx, req, func(chunk string) error {
		buf.WriteString(chunk)
		return nil
	})
	res.elapsed = time.Since(start)

	if err != nil {
		res.err = err
		outcome := errorKind(err)
		if outcome == "" {
			outcome = string(provider.KindUnknown)
			if errors.Is(err, context.Canceled) {
				outcome = "canceled"
			}
		}
		observability.RecordProviderCall(m.Provider, phase, outcome, res.elapsed, 0, 0)
		return res
	}

	res.content = buf.String()
	res.inputTokens = p.CountTokens(fullPrompt)
	res.outputTokens = p.CountTokens(res.content)
	res.cost = p.EstimateCost(res.model, res.inputTokens, res.outputTokens)
	observability.RecordProviderCall(m.Provider, phase, "ok", res.elapsed, res.inputTokens, res.outputTokens)
	return res
}

// collect fans out a council phase and persists each success as it arrives.
// Member failures are reported as scoped error events and skipped.
func (o *Orchestrator) collect(ctx context.Context, c *Council, emit EmitFunc, iteration int, calls []call) phaseOutcome {
	phase, kind, failPrefix := phaseInitial, TypeInitialResponse, "Failed to get response: "
	if iteration > 1 {
		phase, kind, failPrefix = phaseFeedback, TypeFeedback, "Failed to get feedback: "
	}

	var out phaseOutcome
	for res := range o.fanOut(ctx, c, phase, calls) {
		m := res.member

		if res.err != nil {
			out.failed++
			if ctx.Err() != nil {
				continue
			}
			o.memberFailed(c, emit, iteration, phase, res, failPrefix+res.err.Error())
			continue
		}

		resp := &session.Response{
			SessionID:      c.Session.ID,
			MemberID:       m.ID,
			Provider:       m.Provider,
			Model:          res.model,
			Iteration:      iteration,
			Role:           session.RoleCouncil,
			Content:        res.content,
			InputTokens:    res.inputTokens,
			OutputTokens:   res.outputTokens,
			EstimatedCost:  res.cost,
			ResponseTimeMs: res.elapsed.Milliseconds(),
		}
		if err := o.store.AddResponse(ctx, resp); err != nil {
			out.failed++
			if ctx.Err() != nil {
				continue
			}
			res.err = err
			o.memberFailed(c, emit, iteration, phase, res, "Failed to save response: "+err.Error())
			continue
		}

		out.succeeded++
		c.totalCost += res.cost
		out.contributions = append(out.contributions, contribution{role: m.DisplayName(), provider: m.Provider, content: res.content})

		o.record(log.LogEvent{
			Event:        log.EventMemberResponded,
			SessionID:    c.Session.ID,
			Iteration:    iteration,
			Phase:        phase,
			MemberID:     m.ID,
			Provider:     m.Provider,
			Model:        res.model,
			InputTokens:  res.inputTokens,
			OutputTokens: res.outputTokens,
			DurationMs:   res.elapsed.Milliseconds(),
			CostUSD:      res.cost,
		})
		emit(ResponseEvent{
			Kind:       kind,
			Provider:   m.Provider,
			Model:      res.model,
			MemberID:   m.ID,
			MemberRole: m.DisplayName(),
			Content:    res.content,
			Iteration:  iteration,
			Tokens:     Tokens{Input: res.inputTokens, Output: res.outputTokens},
			Cost:       res.cost,
			Done:       true,
			ResponseID: resp.ID,
		})
	}
	return out
}

func (o *Orchestrator) memberFailed(c *Council, emit EmitFunc, iteration int, phase string, res result, message string) {
	m := res.member
	o.logger.Warn().
		Err(res.err).
		Str("session", c.Session.ID).
		Str("member", m.ID).
		Str("provider", m.Provider).
		Int("iteration", iteration).
		Msg("council member failed")
	o.record(log.LogEvent{
		Event:      log.EventMemberFailed,
		SessionID:  c.Session.ID,
		Iteration:  iteration,
		Phase:      phase,
		MemberID:   m.ID,
		Provider:   m.Provider,
		Model:      res.model,
		Error:      res.err.Error(),
		ErrorKind:  errorKind(res.err),
		DurationMs: res.elapsed.Milliseconds(),
	})
	emit(ErrorEvent{
		Provider:   m.Provider,
		MemberID:   m.ID,
		MemberRole: m.DisplayName(),
		Iteration:  iteration,
		Kind:       errorKind(res.err),
		Message:    message,
	})
}

// merge has the chair synthesize items and persists the result. Any failure
// is returned as a *ChairError, except cancellation.
func (o *Orchestrator) merge(ctx context.Context, c *Council, emit EmitFunc, iteration int, previous string, items []contribution) (*session.Response, error) {
	chair := c.chair
	chairErr := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ChairError{Provider: chair.Provider, MemberID: chair.ID, Iteration: iteration, Err: err}
	}

	prompt, err := buildMergePrompt(c.instructions, c.Session.Prompt, iteration, previous, items)
	if err != nil {
		return nil, chairErr(err)
	}

	res := <-o.fanOut(ctx, c, phaseMerge, []call{{member: chair, prompt: prompt}})
	if res.err != nil {
		return nil, chairErr(res.err)
	}

	resp := &session.Response{
		SessionID:      c.Session.ID,
		MemberID:       chair.ID,
		Provider:       chair.Provider,
		Model:          res.model,
		Iteration:      iteration,
		Role:           session.RoleChair,
		Content:        res.content,
		InputTokens:    res.inputTokens,
		OutputTokens:   res.outputTokens,
		EstimatedCost:  res.cost,
		ResponseTimeMs: res.elapsed.Milliseconds(),
	}
	if err := o.store.AddResponse(ctx, resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("save merge: %w", err)
	}
	c.totalCost += res.cost

	o.record(log.LogEvent{
		Event:        log.EventMergeCompleted,
		SessionID:    c.Session.ID,
		Iteration:    iteration,
		Phase:        phaseMerge,
		MemberID:     chair.ID,
		Provider:     chair.Provider,
		Model:        res.model,
		InputTokens:  res.inputTokens,
		OutputTokens: res.outputTokens,
		DurationMs:   res.elapsed.Milliseconds(),
		CostUSD:      res.cost,
	})
	emit(MergeEvent{
		Provider:   chair.Provider,
		Model:      res.model,
		MemberID:   chair.ID,
		MemberRole: chair.DisplayName(),
		Content:    res.content,
		Iteration:  iteration,
		Tokens:     Tokens{Input: res.inputTokens, Output: res.outputTokens},
		Cost:       res.cost,
		Done:       true,
		ResponseID: resp.ID,
	})
	return resp, nil
}

func roundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
