package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
	"github.com/hivecouncil/hivecouncil/internal/session"
)

// runner returns the run for a new session: forward, or resumed from state.
func (s *Server) runner(run *orchestrator.Council, state *council.ResumeState) runFunc {
	if state == nil {
		return func(ctx context.Context, emit orchestrator.EmitFunc) error {
			return s.engine.RunSession(ctx, run, emit)
		}
	}
	return func(ctx context.Context, emit orchestrator.EmitFunc) error {
		return s.engine.ResumeSession(ctx, run, state, emit)
	}
}

func (s *Server) logRunEnd(sessionID, transport string, err error) {
	level := zerolog.InfoLevel
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		level = zerolog.WarnLevel
	default:
		level = zerolog.ErrorLevel
	}
	s.logger.WithLevel(level).Err(err).Str("session", sessionID).Str("transport", transport).Msg("run finished")
}

// bindConfig decodes and validates a session config. It writes a 400 and
// returns false on failure.
func (s *Server) bindConfig(c *gin.Context) (council.Config, bool) {
	var cfg council.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		abortError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return cfg, false
	}
	cfg.ApplyDefaults(s.defaults)
	if err := cfg.Validate(); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return cfg, false
	}
	return cfg, true
}

func (s *Server) handleCreateSession(c *gin.Context) {
	cfg, ok := s.bindConfig(c)
	if !ok {
		return
	}
	s.streamSSE(c, cfg, nil)
}

// handleResumeSession starts a new session from the submitted config and
// continues it from the submitted resume state.
func (s *Server) handleResumeSession(c *gin.Context) {
	cfg, ok := s.bindConfig(c)
	if !ok {
		return
	}
	if cfg.ResumeState == nil {
		abortError(c, http.StatusBadRequest, errors.New("resume_state is required"))
		return
	}
	s.streamSSE(c, cfg, cfg.ResumeState)
}

func (s *Server) streamSSE(c *gin.Context, cfg council.Config, state *council.ResumeState) {
	ctx := c.Request.Context()

	run, err := s.engine.CreateSession(ctx, cfg)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	id := run.Session.ID
	s.runs.acquire(id, "sse")
	defer s.runs.release(id)

	writer, err := startSSEWriter(c.Writer)
	if err != nil {
		s.logger.Error().Err(err).Str("session", id).Msg("sse stream unavailable")
		s.abandon(ctx, run)
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if err := writer.WriteEvent(newSessionCreated(id)); err != nil {
		s.logger.Debug().Err(err).Str("session", id).Msg("write session_created")
	}

	runErr := s.stream(ctx, id, s.runner(run, state),
		func(e orchestrator.Event) error { return writer.WriteEvent(e) },
		func() error { return writer.WriteComment("ping") },
	)
	s.logRunEnd(id, "sse", runErr)
}

// abandon marks a created session failed when its run never starts.
func (s *Server) abandon(ctx context.Context, run *orchestrator.Council) {
	run.Session.Status = session.StatusFailed
	if err := s.store.UpdateSession(context.WithoutCancel(ctx), run.Session); err != nil {
		s.logger.Error().Err(err).Str("session", run.Session.ID).Msg("mark session failed")
	}
}

func (s *Server) handleListSessions(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			abortError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	sessions, err := s.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if sess == nil {
		abortError(c, http.StatusNotFound, errors.New("session not found"))
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleGetResponses(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if sess == nil {
		abortError(c, http.StatusNotFound, errors.New("session not found"))
		return
	}
	responses, err := s.store.GetResponses(ctx, id)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "responses": responses})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	if s.runs.active(id) {
		abortError(c, http.StatusConflict, errors.New("session is running"))
		return
	}

	deleted, err := s.store.DeleteSession(c.Request.Context(), id)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		abortError(c, http.StatusNotFound, errors.New("session not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}

func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.runs.list()})
}
