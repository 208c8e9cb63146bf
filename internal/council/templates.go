package council

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/hivecouncil/hivecouncil/prompts"
)

// DefaultTemplate and DefaultPreset are the fallbacks for unknown ids.
const (
	DefaultTemplate = "balanced"
	DefaultPreset   = "balanced"
)

// Preset maps a sampling preset to its temperature.
type Preset struct {
	ID          string  `json:"id"`
	Temperature float64 `json:"temperature"`
	Description string  `json:"description"`
}

var presets = []Preset{
	{ID: "creative", Temperature: 0.9, Description: "More varied and creative responses"},
	{ID: "balanced", Temperature: 0.7, Description: "Balanced between creativity and consistency"},
	{ID: "precise", Temperature: 0.3, Description: "More focused and consistent responses"},
}

// Presets returns every preset.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by id.
func LookupPreset(id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Temperature returns the preset's temperature, falling back to balanced.
func Temperature(presetID string) float64 {
	if p, ok := LookupPreset(presetID); ok {
		return p.Temperature
	}
	p, _ := LookupPreset(DefaultPreset)
	return p.Temperature
}

// mergeTemplates is loaded once from the embedded prompts/merge directory.
var mergeTemplates = loadMergeTemplates()

func loadMergeTemplates() map[string]string {
	out := make(map[string]string)
	entries, err := fs.ReadDir(prompts.MergeTemplates, "merge")
	if err != nil {
		// Embedded at compile time; a read failure is a bug.
		panic("council: reading embedded merge templates: " + err.Error())
	}
	for _, e := range entries {
		data, err := fs.ReadFile(prompts.MergeTemplates, path.Join("merge", e.Name()))
		if err != nil {
			panic("council: reading embedded merge template: " + err.Error())
		}
		id := strings.TrimSuffix(e.Name(), ".md")
		out[id] = strings.TrimSpace(string(data))
	}
	return out
}

// MergeInstructions returns the synthesis instructions for a template id.
func MergeInstructions(id string) (string, bool) {
	s, ok := mergeTemplates[id]
	return s, ok
}

// MergeInstructionsOrDefault returns the template's instructions, falling back to balanced.
func MergeInstructionsOrDefault(id string) string {
	if s, ok := mergeTemplates[id]; ok {
		return s
	}
	return mergeTemplates[DefaultTemplate]
}

// TemplateIDs returns the known merge template ids, sorted.
func TemplateIDs() []string {
	ids := make([]string, 0, len(mergeTemplates))
	for id := range mergeTemplates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
