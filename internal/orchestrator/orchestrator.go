// Package orchestrator drives council sessions: it fans each phase out to
// every member's provider, persists results in completion order, has the
// chair merge them, and iterates with council feedback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/log"
	"github.com/hivecouncil/hivecouncil/internal/observability"
	"github.com/hivecouncil/hivecouncil/internal/provider"
	"github.com/hivecouncil/hivecouncil/internal/session"
)

// Store is the persistence the engine needs. *session.Store implements it.
type Store interface {
	CreateSession(ctx context.Context, sess *session.Session) error
	UpdateSession(ctx context.Context, sess *session.Session) error
	AddResponse(ctx context.Context, r *session.Response) error
}

// Resolver looks up a provider by name. *provider.Registry implements it.
type Resolver interface {
	Resolve(name string) (provider.Provider, bool)
}

// ErrNoCouncilResponses means no member produced an initial response.
var ErrNoCouncilResponses = errors.New("no council member produced a response")

// ChairError is a failure of the chair's merge. It ends the run.
type ChairError struct {
	Provider  string
	MemberID  string
	Iteration int
	Err       error
}

func (e *ChairError) Error() string {
	return "Chair failed to create merge: " + e.Err.Error()
}

func (e *ChairError) Unwrap() error { return e.Err }

// statusTimeout bounds status writes made after the run context is gone.
const statusTimeout = 5 * time.Second

// Orchestrator runs council sessions. One Orchestrator serves many
// concurrent runs; each run is owned by the goroutine that calls RunSession
// or ResumeSession.
type Orchestrator struct {
	store     Store
	providers Resolver
	journal   *log.Logger
	logger    zerolog.Logger
	maxTokens int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records every progress event in j.
func WithJournal(j *log.Logger) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithLogger sets the process logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMaxTokens caps each completion.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// New returns an Orchestrator persisting to store and calling providers
// resolved through providers.
func New(store Store, providers Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		providers: providers,
		logger:    zerolog.Nop(),
		maxTokens: provider.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Council is the handle for one run: the session plus everything derived
// from its configuration that is not persisted.
type Council struct {
	Session *session.Session

	members       []council.Member
	chair         council.Member
	personalities map[string]string
	fileContext   string
	image         string
	temperature   float64
	instructions  string
	totalCost     float64
}

// Members returns the roster in configuration order.
func (c *Council) Members() []council.Member {
	return append([]council.Member(nil), c.members...)
}

// Chair returns the member that merges.
func (c *Council) Chair() council.Member {
	return c.chair
}

// Personality returns the system prompt used for a member.
func (c *Council) Personality(memberID string) string {
	return c.personalities[memberID]
}

// FileContext returns the attachment text prefixed to every prompt.
func (c *Council) FileContext() string {
	return c.fileContext
}

func (c *Council) member(id string) (council.Member, bool) {
	for _, m := range c.members {
		if m.ID == id {
			return m, true
		}
	}
	return council.Member{}, false
}

// CreateSession persists a new session in running status and returns its run handle.
func (o *Orchestrator) CreateSession(ctx context.Context, cfg council.Config) (*Council, error) {
	if len(cfg.Members) == 0 {
		return nil, fmt.Errorf("%w: council has no members", council.ErrInvalidConfig)
	}
	chair, _ := council.Chair(cfg.Members)

	sess := &session.Session{
		Prompt:            cfg.Prompt,
		ChairProvider:     chair.Provider,
		ChairMemberID:     chair.ID,
		SystemPrompt:      cfg.SystemPrompt,
		TotalIterations:   cfg.Iterations,
		MergeTemplate:     cfg.Template,
		Preset:            cfg.Preset,
		Status:            session.StatusRunning,
		Members:           cfg.Members,
		SelectedProviders: council.Providers(cfg.Members),
		Autopilot:         cfg.Autopilot,
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	o.logger.Info().
		Str("session", sess.ID).
		Int("members", len(cfg.Members)).
		Int("iterations", cfg.Iterations).
		Str("chair", chair.Provider).
		Msg("session created")

	return Attach(sess, cfg.Files), nil
}

// Attach builds the run handle for an existing session. Attachments are not
// persisted, so a handle for a stored session carries only the files passed here.
func Attach(sess *session.Session, files []council.Attachment) *Council {
	chair, _ := council.Chair(sess.Members)
	if sess.ChairMemberID != "" {
		for _, m := range sess.Members {
			if m.ID == sess.ChairMemberID {
				chair = m
				break
			}
		}
	}

	c := &Council{
		Session:       sess,
		members:       sess.Members,
		chair:         chair,
		personalities: make(map[string]string, len(sess.Members)),
		fileContext:   council.FileContext(files),
		image:         council.FirstImage(files),
		temperature:   council.Temperature(sess.Preset),
		instructions:  council.MergeInstructionsOrDefault(sess.MergeTemplate),
	}
	override := strings.TrimSpace(sess.SystemPrompt)
	for _, m := range sess.Members {
		if override != "" {
			c.personalities[m.ID] = override
			continue
		}
		c.personalities[m.ID] = council.SystemPrompt(m.Archetype, m.CustomPersonality)
	}
	return c
}

// finish performs the single terminal state transition of a run and emits
// its last event. It returns runErr, or nil on success.
func (o *Orchestrator) finish(ctx context.Context, c *Council, emit EmitFunc, runErr error) error {
	sess := c.Session

	if runErr == nil {
		sess.Status = session.StatusCompleted
		if err := o.store.UpdateSession(ctx, sess); err != nil {
			runErr = fmt.Errorf("update session status: %w", err)
		} else {
			observability.RecordSession(string(session.StatusCompleted))
			o.record(log.LogEvent{Event: log.EventSessionCompleted, SessionID: sess.ID, Iteration: sess.CurrentIteration, CostUSD: c.totalCost})
			o.logger.Info().Str("session", sess.ID).Float64("cost", c.totalCost).Msg("session completed")
			emit(CompleteEvent{SessionID: sess.ID, Iterations: sess.TotalIterations, TotalCost: roundCost(c.totalCost)})
			return nil
		}
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
	defer cancel()

	if ctx.Err() != nil {
		sess.Status = session.StatusPaused
		if err := o.store.UpdateSession(detached, sess); err != nil {
			o.logger.Error().Err(err).Str("session", sess.ID).Msg("persist paused status")
		}
		observability.RecordSession(string(session.StatusPaused))
		o.record(log.LogEvent{Event: log.EventSessionInterrupted, SessionID: sess.ID, Iteration: sess.CurrentIteration})
		o.logger.Warn().Str("session", sess.ID).Int("iteration", sess.CurrentIteration).Msg("session interrupted")
		emit(ErrorEvent{Message: "session interrupted", Iteration: sess.CurrentIteration, Terminal: true})
		return ctx.Err()
	}

	sess.Status = session.StatusFailed
	if err := o.store.UpdateSession(detached, sess); err != nil {
		o.logger.Error().Err(err).Str("session", sess.ID).Msg("persist failed status")
	}
	observability.RecordSession(string(session.StatusFailed))
	o.record(log.LogEvent{Event: log.EventSessionFailed, SessionID: sess.ID, Iteration: sess.CurrentIteration, Error: runErr.Error()})
	o.logger.Error().Err(runErr).Str("session", sess.ID).Msg("session failed")

	ev := ErrorEvent{Message: runErr.Error(), Iteration: sess.CurrentIteration, Terminal: true}
	var chairErr *ChairError
	if errors.As(runErr, &chairErr) {
		ev.Provider = chairErr.Provider
		ev.MemberID = chairErr.MemberID
		ev.MemberRole = c.chair.DisplayName()
		ev.Kind = errorKind(chairErr.Err)
	}
	emit(ev)
	return runErr
}

// record appends to the journal when one is configured. Journal failures
// are logged and never affect the run.
func (o *Orchestrator) record(e log.LogEvent) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Append(e); err != nil {
		o.logger.Warn().Err(err).Str("event", e.Event).Msg("journal append failed")
	}
}

// errorKind returns the provider error kind, if any.
func errorKind(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return ""
}
