package api

import (
	"sort"
	"sync"
	"time"
)

// activeRun is a session currently being driven by this server.
type activeRun struct {
	SessionID     string    `json:"session_id"`
	Transport     string    `json:"transport"`
	StartedAt     time.Time `json:"started_at"`
	LastEvent     time.Time `json:"last_event"`
	LastEventType string    `json:"last_event_type,omitempty"`
	Events        int       `json:"events"`
}

// runTable tracks in-flight runs so a session is never driven twice and is
// not deleted mid-run. All access is protected by mu.
type runTable struct {
	mu   sync.RWMutex
	runs map[string]*activeRun // session id -> run
}

func newRunTable() *runTable {
	return &runTable{runs: make(map[string]*activeRun)}
}

// acquire registers a run for id. It returns false if one is already active.
func (t *runTable) acquire(id, transport string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, held := t.runs[id]; held {
		return false
	}
	now := time.Now()
	t.runs[id] = &activeRun{SessionID: id, Transport: transport, StartedAt: now, LastEvent: now}
	return true
}

func (t *runTable) release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, id)
}

// touch notes an emitted event.
func (t *runTable) touch(id, eventType string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.runs[id]; ok {
		r.LastEvent = time.Now()
		r.LastEventType = eventType
		r.Events++
	}
}

func (t *runTable) active(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.runs[id]
	return ok
}

func (t *runTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.runs)
}

// list returns copies of the active runs, oldest first.
func (t *runTable) list() []activeRun {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]activeRun, 0, len(t.runs))
	for _, r := range t.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
