// Package session provides SQLite-backed persistence for council sessions
// and the responses produced during them.
package session

import (
	"time"

	"github.com/hivecouncil/hivecouncil/internal/council"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Response roles.
const (
	RoleCouncil = "council"
	RoleChair   = "chair"
)

// Session is one council run and its configuration.
type Session struct {
	ID                string           `json:"id"`
	Prompt            string           `json:"prompt"`
	CurrentPrompt     string           `json:"current_prompt,omitempty"`
	ChairProvider     string           `json:"chair_provider"`
	ChairMemberID     string           `json:"chair_member_id"`
	SystemPrompt      string           `json:"system_prompt,omitempty"`
	TotalIterations   int              `json:"total_iterations"`
	CurrentIteration  int              `json:"current_iteration"`
	MergeTemplate     string           `json:"merge_template"`
	Preset            string           `json:"preset"`
	Status            Status           `json:"status"`
	Members           []council.Member `json:"council_members"`
	SelectedProviders []string         `json:"selected_providers"`
	Autopilot         bool             `json:"autopilot"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Response is a single model output. Responses are append-only.
type Response struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	MemberID       string    `json:"member_id"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Iteration      int       `json:"iteration"`
	Role           string    `json:"role"` // council, chair
	Content        string    `json:"content"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	EstimatedCost  float64   `json:"estimated_cost"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CouncilTemplate is a saved roster that can seed new sessions.
type CouncilTemplate struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Members     []council.Member `json:"council_members"`
	Iterations  int              `json:"iterations"`
	Template    string           `json:"template"`
	Preset      string           `json:"preset"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Summary provides a high-level view of a session for listing.
type Summary struct {
	ID               string    `json:"id"`
	Prompt           string    `json:"prompt"`
	Status           Status    `json:"status"`
	TotalIterations  int       `json:"total_iterations"`
	CurrentIteration int       `json:"current_iteration"`
	Responses        int       `json:"responses"`
	TotalCost        float64   `json:"total_cost"`
	UpdatedAt        time.Time `json:"updated_at"`
}
