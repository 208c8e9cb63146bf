package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
)

const (
	heartbeatInterval = 15 * time.Second
	eventBuffer       = 64
)

var errSSENoFlusher = errors.New("sse response writer does not support flushing")

// sessionCreated is the frame sent before any run event.
type sessionCreated struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func newSessionCreated(id string) sessionCreated {
	return sessionCreated{Type: "session_created", SessionID: id}
}

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func startSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errSSENoFlusher
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-store")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher.Flush()
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteComment(comment string) error {
	if _, err := io.WriteString(w.writer, ": "+strings.TrimSpace(comment)+"\n\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// WriteEvent writes payload as a single unnamed data event.
func (w *sseWriter) WriteEvent(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if _, err := io.WriteString(w.writer, "data: "); err != nil {
			return err
		}
		if _, err := w.writer.Write(line); err != nil {
			return err
		}
		if _, err := io.WriteString(w.writer, "\n"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w.writer, "\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// runFunc drives one session run, emitting events as it goes.
type runFunc func(ctx context.Context, emit orchestrator.EmitFunc) error

// stream drives run on its own goroutine and hands its events to write on
// the calling goroutine, interleaved with heartbeats. A write failure
// cancels the run, which then pauses its session. It returns the run's error.
func (s *Server) stream(ctx context.Context, sessionID string, run runFunc, write func(orchestrator.Event) error, heartbeat func() error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan orchestrator.Event, eventBuffer)
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		errc <- run(runCtx, func(e orchestrator.Event) {
			s.runs.touch(sessionID, e.Type())
			select {
			case events <- e:
			case <-runCtx.Done():
			}
		})
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return <-errc
			}
			if err := write(e); err != nil {
				s.logger.Debug().Err(err).Str("session", sessionID).Msg("client write failed; cancelling run")
				cancel()
				for range events {
				}
				return <-errc
			}
		case <-ticker.C:
			if err := heartbeat(); err != nil {
				cancel()
			}
		}
	}
}
