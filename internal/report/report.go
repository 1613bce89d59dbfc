// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report synthesizes per-task analyses into the final research report.
// The model's text is the report; nothing is parsed from it.
package report

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/pkg/types"
)

const systemPrompt = `You are an expert research report writer. Your task is to synthesize the findings from multiple
research tasks into a comprehensive, well-structured research report. The report should directly
address the original research query with thorough, nuanced analysis.

Your report should:
1. Begin with an executive summary that concisely answers the research query
2. Include a structured breakdown of key findings organized by theme or topic
3. Present evidence and insights from all research tasks
4. Acknowledge different perspectives, contradictions, and uncertainties
5. Include citations to sources where appropriate
6. End with clear conclusions and recommendations (if applicable)

Format the report professionally with:
- Clear section headings and subheadings
- Well-structured paragraphs
- Bullet points for lists and key points
- Citations in a consistent format
- Professional, academic tone

Make the report thorough and comprehensive while remaining focused on the original query.`

var userTmpl = template.Must(template.New("report").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`Research Query: {{.Query}}

Query Analysis: {{.Plan.QueryAnalysis}}

Research Approach: {{.Plan.Approach}}

Task Results:
{{range $i, $r := .Results}}
TASK {{inc $i}}: {{or $r.Task (printf "Task %d" (inc $i))}}
Summary: {{or $r.Analysis.Summary "No summary available"}}
{{- with $r.Analysis.KeyInsights}}
Key Insights:
{{- range .}}{{if .Insight}}
- {{.Insight}} (Confidence: {{.Confidence}}){{end}}{{end}}
{{- end}}
{{- with $r.Analysis.InformationGaps}}
Information Gaps:
{{- range .}}
- {{.}}
{{- end}}
{{- end}}
{{end}}
Available Sources for Citations:
{{range $i, $s := .Sources}}
SOURCE {{inc $i}}:
Title: {{or $s.Title "Untitled"}}
Author: {{or $s.Author "Unknown"}}
Publication: {{or $s.Publication "N/A"}}
Year: {{or $s.Year "N/A"}}
URL: {{or $s.URL "No URL available"}}
{{end}}
Please synthesize this information into a comprehensive research report that thoroughly
addresses the original query. The report should be well-structured with clear sections,
include citations to sources where appropriate, and provide nuanced analysis that
acknowledges different perspectives and limitations of the research.`))

// Synthesizer writes the final report.
type Synthesizer struct {
	model  llm.Generator
	logger *zap.Logger
}

// New returns a Synthesizer that calls model.
func New(model llm.Generator, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{model: model, logger: logging.OrNop(logger)}
}

// Synthesize returns the model's report for query. The prompt carries each
// task's summary, insights, and gaps in plan order, plus every source from
// every result (duplicates kept) for citation.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, plan types.ResearchPlan, results []types.TaskResult) (string, error) {
	msg, err := UserMessage(query, plan, results)
	if err != nil {
		return "", err
	}

	s.logger.Debug("synthesizing report", zap.Int("tasks", len(results)), zap.Int("prompt_bytes", len(msg)))
	text, err := s.model.Generate(ctx, systemPrompt, msg)
	if err != nil {
		return "", fmt.Errorf("synthesizing report: %w", err)
	}
	return text, nil
}

// UserMessage renders the synthesis prompt.
func UserMessage(query string, plan types.ResearchPlan, results []types.TaskResult) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Query   string
		Plan    types.ResearchPlan
		Results []types.TaskResult
		Sources []types.Source
	}{query, plan, results, types.CollectSources(results)}
	if err := userTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering report prompt: %w", err)
	}
	return buf.String(), nil
}
