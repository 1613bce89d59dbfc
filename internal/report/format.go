// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/deep-research/pkg/types"
)

// FormatPlan renders a plan as Markdown with analysis, context, numbered
// tasks, and approach sections.
func FormatPlan(plan types.ResearchPlan) string {
	var b strings.Builder
	b.WriteString("# Research Plan\n\n")
	b.WriteString("## Query Analysis\n")
	b.WriteString(plan.QueryAnalysis + "\n\n")
	b.WriteString("## Context\n")
	b.WriteString(plan.Context + "\n\n")
	b.WriteString("## Research Tasks\n")
	for i, task := range plan.Tasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, task)
	}
	b.WriteString("\n")
	b.WriteString("## Research Approach\n")
	b.WriteString(plan.Approach + "\n\n")
	return b.String()
}

// TaskList renders tasks as "Task n: text" lines joined by newlines.
func TaskList(tasks []string) string {
	lines := make([]string, len(tasks))
	for i, task := range tasks {
		lines[i] = fmt.Sprintf("Task %d: %s", i+1, task)
	}
	return strings.Join(lines, "\n")
}

// FormatCitation renders a source as a one-line citation, e.g.
// "Title, by Author, in Journal (2021) [Available at: https://...]".
func FormatCitation(s types.Source) string {
	var b strings.Builder
	if s.Title == "" {
		b.WriteString("Untitled")
	} else {
		b.WriteString(s.Title)
	}
	if s.Author != "" && s.Author != "Unknown" {
		b.WriteString(", by " + s.Author)
	}
	if s.Publication != "" {
		b.WriteString(", in " + s.Publication)
	}
	if s.Year != "" {
		fmt.Fprintf(&b, " (%s)", s.Year)
	}
	if s.URL != "" {
		fmt.Fprintf(&b, " [Available at: %s]", s.URL)
	}
	return b.String()
}

// FormatElapsed renders d compactly: "1h 2m 3s", "2m 3s", or "3s".
func FormatElapsed(d time.Duration) string {
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Timing renders the completion line stored on a ResearchRecord.
func Timing(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("Research completed in %d minutes and %d seconds.", total/60, total%60)
}
