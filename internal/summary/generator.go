// Package summary produces the daily summary text for a day record.
package summary

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

// Input is everything the generator needs about a day.
type Input struct {
	Date           string
	DailyNote      string
	TotalTodos     int
	CompletedTodos int
}

// Generator renders a daily summary. The template implementation below is the
// default; an AI-backed completer can implement the same interface.
type Generator interface {
	Generate(ctx context.Context, in Input) (string, error)
}

const summaryTemplate = `Summary for {{.Date}}:

- {{.TaskLine}}
- {{.NoteLine}}
`

type templateData struct {
	Date     string
	TaskLine string
	NoteLine string
}

// TemplateGenerator renders summaries from a fixed text template.
type TemplateGenerator struct {
	tmpl *template.Template
}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{
		tmpl: template.Must(template.New("summary").Parse(summaryTemplate)),
	}
}

func (g *TemplateGenerator) Generate(_ context.Context, in Input) (string, error) {
	data := templateData{
		Date:     in.Date,
		TaskLine: taskLine(in.TotalTodos, in.CompletedTodos),
		NoteLine: noteLine(in.DailyNote),
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return buf.String(), nil
}

func taskLine(total, completed int) string {
	if total == 0 {
		return "No tasks"
	}
	return fmt.Sprintf("%d tasks: %d completed, %d pending", total, completed, total-completed)
}

func noteLine(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return "No notes"
	}
	return "Notes: " + truncate(note, 50)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
