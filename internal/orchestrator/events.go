package orchestrator

import "encoding/json"

// Event type names as they appear on the wire.
const (
	TypeStatus          = "status"
	TypeInitialResponse = "initial_response"
	TypeFeedback        = "feedback"
	TypeMerge           = "merge"
	TypeError           = "error"
	TypeComplete        = "complete"
)

// Event is a progress notification emitted during a run. The set of
// implementations is closed: StatusEvent, ResponseEvent, MergeEvent,
// ErrorEvent and CompleteEvent.
type Event interface {
	Type() string
	event()
}

// EmitFunc receives events on the orchestrating goroutine, in emission order.
type EmitFunc func(Event)

// Tokens is an estimated token count for one call.
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// StatusEvent announces a phase transition.
type StatusEvent struct {
	Message   string `json:"message"`
	Iteration int    `json:"iteration,omitempty"`
}

// ResponseEvent carries one persisted council response. Kind is
// TypeInitialResponse for iteration 1 and TypeFeedback afterwards.
type ResponseEvent struct {
	Kind       string  `json:"-"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model,omitempty"`
	MemberID   string  `json:"member_id"`
	MemberRole string  `json:"member_role"`
	Content    string  `json:"content"`
	Iteration  int     `json:"iteration"`
	Tokens     Tokens  `json:"tokens"`
	Cost       float64 `json:"cost"`
	Done       bool    `json:"done"`
	ResponseID string  `json:"response_id"`
}

// MergeEvent carries the chair's persisted synthesis for an iteration.
type MergeEvent struct {
	Provider   string  `json:"provider"`
	Model      string  `json:"model,omitempty"`
	MemberID   string  `json:"member_id"`
	MemberRole string  `json:"member_role"`
	Content    string  `json:"content"`
	Iteration  int     `json:"iteration"`
	Tokens     Tokens  `json:"tokens"`
	Cost       float64 `json:"cost"`
	Done       bool    `json:"done"`
	ResponseID string  `json:"response_id"`
}

// ErrorEvent reports a failure. Scoped errors name the member that failed and
// the run continues; a terminal error is the last event of a run.
type ErrorEvent struct {
	Provider   string `json:"provider,omitempty"`
	MemberID   string `json:"member_id,omitempty"`
	MemberRole string `json:"member_role,omitempty"`
	Iteration  int    `json:"iteration,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Message    string `json:"message"`
	Terminal   bool   `json:"terminal"`
}

// CompleteEvent is the last event of a successful run.
type CompleteEvent struct {
	SessionID  string  `json:"session_id"`
	Iterations int     `json:"iterations"`
	TotalCost  float64 `json:"total_cost"`
}

func (StatusEvent) Type() string { return TypeStatus }
func (e ResponseEvent) Type() string {
	if e.Kind == "" {
		return TypeInitialResponse
	}
	return e.Kind
}
func (MergeEvent) Type() string    { return TypeMerge }
func (ErrorEvent) Type() string    { return TypeError }
func (CompleteEvent) Type() string { return TypeComplete }

func (StatusEvent) event()   {}
func (ResponseEvent) event() {}
func (MergeEvent) event()    {}
func (ErrorEvent) event()    {}
func (CompleteEvent) event() {}

// MarshalJSON methods add the "type" discriminator.

func (e StatusEvent) MarshalJSON() ([]byte, error) {
	type plain StatusEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{e.Type(), plain(e)})
}

func (e ResponseEvent) MarshalJSON() ([]byte, error) {
	type plain ResponseEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{e.Type(), plain(e)})
}

func (e MergeEvent) MarshalJSON() ([]byte, error) {
	type plain MergeEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{e.Type(), plain(e)})
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type plain ErrorEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{e.Type(), plain(e)})
}

func (e CompleteEvent) MarshalJSON() ([]byte, error) {
	type plain CompleteEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{e.Type(), plain(e)})
}

// IsTerminal reports whether e ends a run.
func IsTerminal(e Event) bool {
	switch ev := e.(type) {
	case CompleteEvent:
		return true
	case ErrorEvent:
		return ev.Terminal
	}
	return false
}
