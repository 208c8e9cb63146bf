package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
	// wsReadLimit admits a config carrying several maximum-size attachments.
	wsReadLimit = 64 << 20
)

type wsErrorPayload struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Terminal bool   `json:"terminal"`
}

// isOriginAllowed accepts same-host requests, requests without an Origin
// header, and configured origins.
func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}
	return false
}

// handleSessionSocket runs a session over a WebSocket. The first client
// message is the session config; the server then streams events, starting
// with session_created. Closing the socket interrupts the run.
func (s *Server) handleSessionSocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.origins)
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	writeJSON := func(v any) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(v)
	}
	closeWith := func(code int, reason string) {
		deadline := time.Now().Add(wsWriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	}

	var cfg council.Config
	if err := conn.ReadJSON(&cfg); err != nil {
		_ = writeJSON(wsErrorPayload{Type: "error", Message: "invalid session config: " + err.Error(), Terminal: true})
		closeWith(websocket.CloseUnsupportedData, "invalid session config")
		return
	}
	cfg.ApplyDefaults(s.defaults)
	if err := cfg.Validate(); err != nil {
		_ = writeJSON(wsErrorPayload{Type: "error", Message: err.Error(), Terminal: true})
		closeWith(websocket.ClosePolicyViolation, "invalid session config")
		return
	}

	// The request context is not cancelled when a hijacked connection
	// drops, so a reader goroutine watches for the close instead.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	run, err := s.engine.CreateSession(ctx, cfg)
	if err != nil {
		_ = writeJSON(wsErrorPayload{Type: "error", Message: err.Error(), Terminal: true})
		closeWith(websocket.CloseInternalServerErr, "create session failed")
		return
	}
	id := run.Session.ID
	s.runs.acquire(id, "websocket")
	defer s.runs.release(id)

	if err := writeJSON(newSessionCreated(id)); err != nil {
		cancel()
	}

	runErr := s.stream(ctx, id, s.runner(run, cfg.ResumeState),
		func(e orchestrator.Event) error { return writeJSON(e) },
		func() error {
			return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
		},
	)
	s.logRunEnd(id, "websocket", runErr)

	if errors.Is(runErr, context.Canceled) {
		return
	}
	closeWith(websocket.CloseNormalClosure, "session finished")
}
