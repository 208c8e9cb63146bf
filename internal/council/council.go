// Package council defines the inbound council configuration: members,
// attachments, resume state, and the static tables (archetypes, merge
// templates, presets) used to shape each member's prompts.
package council

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation limits for an inbound council configuration.
const (
	MaxPromptLength   = 50000
	MinIterations     = 1
	MaxIterations     = 10
	MaxMembers        = 10
	MaxAttachmentSize = 10 * 1024 * 1024 // bytes, decoded
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid council config")

// Member is one configured model+provider+personality participating in a session.
type Member struct {
	ID                string `json:"id" yaml:"id" jsonschema:"minLength=1"`
	Provider          string `json:"provider" yaml:"provider" jsonschema:"enum=openai,enum=anthropic,enum=google,enum=grok,enum=ollama"`
	Model             string `json:"model" yaml:"model"`
	Role              string `json:"role" yaml:"role"`
	Archetype         string `json:"archetype,omitempty" yaml:"archetype,omitempty"`
	CustomPersonality string `json:"custom_personality,omitempty" yaml:"custom_personality,omitempty"`
	IsChair           bool   `json:"is_chair" yaml:"is_chair"`
}

// DisplayName returns the member's role, falling back to its provider.
func (m Member) DisplayName() string {
	if m.Role != "" {
		return m.Role
	}
	return m.Provider
}

// Attachment is an uploaded file whose text (or image payload) was extracted upstream.
type Attachment struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	Size          int64  `json:"size"`
	ExtractedText string `json:"extracted_text,omitempty"`
	Base64Data    string `json:"base64_data,omitempty"`
}

// decodedSize returns the declared size, or the decoded length of the base64 payload.
func (a Attachment) decodedSize() int64 {
	if a.Size > 0 {
		return a.Size
	}
	if a.Base64Data != "" {
		n := int64(len(a.Base64Data))
		return n * 3 / 4
	}
	return int64(len(a.ExtractedText))
}

// ResumeResponse is one already-produced response carried in a resume state.
type ResumeResponse struct {
	MemberID   string  `json:"member_id,omitempty"`
	MemberRole string  `json:"member_role,omitempty"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model,omitempty"`
	Iteration  int     `json:"iteration"`
	Content    string  `json:"content"`
	Cost       float64 `json:"cost,omitempty"`
}

// ResumeState describes how far an interrupted run got.
type ResumeState struct {
	CurrentIteration int              `json:"current_iteration"`
	Responses        []ResumeResponse `json:"responses"`
	MergedResponses  []ResumeResponse `json:"merged_responses"`
	TotalCost        float64          `json:"total_cost,omitempty"`
}

// Config is the session configuration submitted by a caller.
type Config struct {
	Prompt       string       `json:"prompt" jsonschema:"minLength=1,maxLength=50000"`
	Members      []Member     `json:"council_members" jsonschema:"minItems=1,maxItems=10"`
	Iterations   int          `json:"iterations" jsonschema:"minimum=1,maximum=10"`
	Template     string       `json:"template" jsonschema:"enum=analytical,enum=creative,enum=technical,enum=balanced"`
	Preset       string       `json:"preset" jsonschema:"enum=creative,enum=balanced,enum=precise"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
	Autopilot    bool         `json:"autopilot"`
	Files        []Attachment `json:"files,omitempty"`
	ResumeState  *ResumeState `json:"resume_state,omitempty"`

	// Legacy roster form: a list of providers plus the chair's provider.
	Chair             string   `json:"chair,omitempty"`
	SelectedProviders []string `json:"selected_providers,omitempty"`
}

// Defaults fills in values a caller may omit.
type Defaults struct {
	Chair      string
	Iterations int
	Template   string
	Preset     string
}

// ApplyDefaults fills omitted fields and expands the legacy provider-list form
// into a member roster.
func (c *Config) ApplyDefaults(d Defaults) {
	if c.Iterations == 0 {
		c.Iterations = d.Iterations
	}
	if c.Template == "" {
		c.Template = d.Template
	}
	if c.Preset == "" {
		c.Preset = d.Preset
	}

	if len(c.Members) == 0 && len(c.SelectedProviders) > 0 {
		chair := c.Chair
		if chair == "" {
			chair = d.Chair
		}
		chairSet := false
		for _, p := range c.SelectedProviders {
			m := Member{ID: p, Provider: p, Role: p, Archetype: DefaultArchetype}
			if p == chair && !chairSet {
				m.IsChair = true
				chairSet = true
			}
			c.Members = append(c.Members, m)
		}
		if !chairSet {
			c.Members[0].IsChair = true
		}
	}

	for i := range c.Members {
		if c.Members[i].Archetype == "" {
			c.Members[i].Archetype = DefaultArchetype
		}
	}
}

// Validate checks the configuration shape. It does not check provider availability.
func (c *Config) Validate() error {
	n := utf8.RuneCountInString(c.Prompt)
	if strings.TrimSpace(c.Prompt) == "" || n > MaxPromptLength {
		return fmt.Errorf("%w: prompt must be between 1 and %d characters", ErrInvalidConfig, MaxPromptLength)
	}
	if c.Iterations < MinIterations || c.Iterations > MaxIterations {
		return fmt.Errorf("%w: iterations must be between %d and %d", ErrInvalidConfig, MinIterations, MaxIterations)
	}
	if len(c.Members) == 0 || len(c.Members) > MaxMembers {
		return fmt.Errorf("%w: council must have between 1 and %d members", ErrInvalidConfig, MaxMembers)
	}

	seen := make(map[string]bool, len(c.Members))
	chairs := 0
	for _, m := range c.Members {
		if m.ID == "" {
			return fmt.Errorf("%w: member id is required", ErrInvalidConfig)
		}
		if seen[m.ID] {
			return fmt.Errorf("%w: duplicate member id %q", ErrInvalidConfig, m.ID)
		}
		seen[m.ID] = true
		if m.Provider == "" {
			return fmt.Errorf("%w: member %q has no provider", ErrInvalidConfig, m.ID)
		}
		if m.Archetype != "" {
			if _, ok := LookupArchetype(m.Archetype); !ok {
				return fmt.Errorf("%w: unknown archetype %q", ErrInvalidConfig, m.Archetype)
			}
		}
		if m.IsChair {
			chairs++
		}
	}
	if chairs != 1 {
		return fmt.Errorf("%w: exactly one member must be the chair, got %d", ErrInvalidConfig, chairs)
	}

	if _, ok := MergeInstructions(c.Template); !ok {
		return fmt.Errorf("%w: unknown merge template %q", ErrInvalidConfig, c.Template)
	}
	if _, ok := LookupPreset(c.Preset); !ok {
		return fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, c.Preset)
	}

	for _, f := range c.Files {
		if f.decodedSize() > MaxAttachmentSize {
			return fmt.Errorf("%w: file %q exceeds %d bytes", ErrInvalidConfig, f.Filename, MaxAttachmentSize)
		}
	}

	if rs := c.ResumeState; rs != nil {
		if rs.CurrentIteration < 1 || rs.CurrentIteration > c.Iterations {
			return fmt.Errorf("%w: resume iteration %d outside 1..%d", ErrInvalidConfig, rs.CurrentIteration, c.Iterations)
		}
	}

	return nil
}

// Chair returns the member flagged as chair. If none is flagged the first
// member is returned; ok is false only for an empty roster.
func Chair(members []Member) (Member, bool) {
	for _, m := range members {
		if m.IsChair {
			return m, true
		}
	}
	if len(members) == 0 {
		return Member{}, false
	}
	return members[0], true
}

// Providers returns each member's provider in roster order.
func Providers(members []Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Provider
	}
	return out
}

// FileContext joins the extracted text of every attachment into one block.
// Each block is tagged with its filename. Returns "" when no attachment has text.
func FileContext(files []Attachment) string {
	var blocks []string
	for _, f := range files {
		if f.ExtractedText == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("=== File: %s ===\n%s", f.Filename, f.ExtractedText))
	}
	return strings.Join(blocks, "\n\n")
}

// FirstImage returns the base64 payload of the first attachment carrying one.
func FirstImage(files []Attachment) string {
	for _, f := range files {
		if f.Base64Data != "" {
			return f.Base64Data
		}
	}
	return ""
}
