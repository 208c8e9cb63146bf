package prompts

import "embed"

// MergeTemplates holds the chair synthesis instructions, one file per template id.
//
//go:embed merge/*.md
var MergeTemplates embed.FS

//go:embed orchestrator/merge_initial.md.tmpl
var MergeInitialTemplate string

//go:embed orchestrator/merge_iterate.md.tmpl
var MergeIterateTemplate string

//go:embed orchestrator/feedback.md.tmpl
var FeedbackTemplate string
