package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/hivecouncil/hivecouncil/prompts"
)

var (
	mergeInitialTmpl = template.Must(template.New("merge_initial").Parse(prompts.MergeInitialTemplate))
	mergeIterateTmpl = template.Must(template.New("merge_iterate").Parse(prompts.MergeIterateTemplate))
	feedbackTmpl     = template.Must(template.New("feedback").Parse(prompts.FeedbackTemplate))
)

// contribution is one council output offered to the chair.
type contribution struct {
	role     string
	provider string
	content  string
}

type mergeInitialData struct {
	Instructions string
	Prompt       string
	Responses    string
}

type mergeIterateData struct {
	Instructions      string
	Prompt            string
	PreviousIteration int
	Previous          string
	Responses         string
}

type feedbackData struct {
	Merge  string
	Prompt string
}

// withFiles prefixes the attachment context, when any, to a model prompt.
func withFiles(fileContext, prompt string) string {
	if fileContext == "" {
		return prompt
	}
	return fileContext + "\n\n" + prompt
}

// formatContributions renders council outputs for the chair.
func formatContributions(items []contribution) string {
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		blocks = append(blocks, fmt.Sprintf("--- Response from %s (%s) ---\n%s", it.role, it.provider, it.content))
	}
	return strings.Join(blocks, "\n\n")
}

// buildMergePrompt renders the chair prompt. The first iteration asks for a
// synthesis of the council; later iterations ask for the improved
// deliverable given the previous merge and fresh feedback.
func buildMergePrompt(instructions, prompt string, iteration int, previous string, items []contribution) (string, error) {
	var buf bytes.Buffer
	var err error
	if iteration <= 1 {
		err = mergeInitialTmpl.Execute(&buf, mergeInitialData{
			Instructions: instructions,
			Prompt:       prompt,
			Responses:    formatContributions(items),
		})
	} else {
		err = mergeIterateTmpl.Execute(&buf, mergeIterateData{
			Instructions:      instructions,
			Prompt:            prompt,
			PreviousIteration: iteration - 1,
			Previous:          previous,
			Responses:         formatContributions(items),
		})
	}
	if err != nil {
		return "", fmt.Errorf("render merge prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// buildFeedbackPrompt asks a member to critique the latest merge.
func buildFeedbackPrompt(merge, prompt string) (string, error) {
	var buf bytes.Buffer
	if err := feedbackTmpl.Execute(&buf, feedbackData{Merge: merge, Prompt: prompt}); err != nil {
		return "", fmt.Errorf("render feedback prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
