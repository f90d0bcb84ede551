package notion

import (
	"fmt"
	"html"
	"strings"

	"github.com/pkg/errors"
)

// QueryType selects a predefined task filter.
type QueryType string

const (
	Overdue    QueryType = "overdue"
	Today      QueryType = "today"
	Tomorrow   QueryType = "tomorrow"
	InProgress QueryType = "in_progress"
	All        QueryType = "all"
)

// QueryTypes lists the supported filters in display order.
var QueryTypes = []QueryType{Overdue, Today, Tomorrow, InProgress, All}

var labels = map[QueryType]string{
	Overdue:    "🔴 Overdue tasks",
	Today:      "📅 Tasks for today",
	Tomorrow:   "📅 Tasks for tomorrow",
	InProgress: "⏳ Tasks in progress",
	All:        "📋 Active tasks",
}

// ParseQueryType validates a filter name. Empty means All.
func ParseQueryType(s string) (QueryType, error) {
	if s == "" {
		return All, nil
	}
	q := QueryType(strings.ToLower(strings.ReplaceAll(s, "-", "_")))
	if _, ok := labels[q]; !ok {
		return "", errors.Errorf("unknown task query %q (expected one of overdue, today, tomorrow, in_progress, all)", s)
	}
	return q, nil
}

// Label is the heading used for q.
func (q QueryType) Label() string {
	if l, ok := labels[q]; ok {
		return l
	}
	return "📋 Tasks"
}

// FormatTasks renders tasks as Telegram HTML.
func FormatTasks(tasks []Task, q QueryType) string {
	label := q.Label()
	if len(tasks) == 0 {
		return label + "\n\nNo tasks 🎉"
	}

	lines := make([]string, 0, len(tasks)+2)
	lines = append(lines, fmt.Sprintf("<b>%s:</b>", label))
	for _, t := range tasks {
		line := "• " + html.EscapeString(t.Name)
		if t.DueDate != "" {
			line += fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(t.DueDate))
		}
		if t.Status != "" && q == All {
			line += fmt.Sprintf(" [%s]", html.EscapeString(t.Status))
		}
		lines = append(lines, line)
	}
	lines = append(lines, fmt.Sprintf("\n<i>Total: %d</i>", len(tasks)))
	return strings.Join(lines, "\n")
}

// FormatCreated renders the confirmation for a created task.
func FormatCreated(task NewTask) string {
	lines := []string{"✅ Task added", "", "📝 <b>" + html.EscapeString(strings.TrimSpace(task.Title)) + "</b>"}
	if task.Project != "" {
		lines = append(lines, "📁 Project: "+html.EscapeString(task.Project))
	}
	if task.DueDate != "" {
		lines = append(lines, "📅 Due: "+html.EscapeString(task.DueDate))
	}
	return strings.Join(lines, "\n")
}
