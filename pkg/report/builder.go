package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const dateLayout = "2006-01-02"

// DailyDir holds one note per day, named <date>.md, inside the vault.
const DailyDir = "daily"

var (
	// ErrMissingDailyNote is returned for variants that process the daily
	// note when the vault has none for the day.
	ErrMissingDailyNote = errors.New("no daily note")

	// ErrEmptyRequest is returned for request-driven variants built without
	// a request.
	ErrEmptyRequest = errors.New("empty request")
)

// TaskProperties names the task-database properties referenced by the
// filter and sort clauses in the prompts.
type TaskProperties struct {
	Title      string
	Due        string
	Status     string
	DoneStatus string
}

// DefaultTaskProperties matches a stock task database.
var DefaultTaskProperties = TaskProperties{
	Title:      "Task",
	Due:        "Due",
	Status:     "Status",
	DoneStatus: "Done",
}

// Settings are the run-independent inputs of the prompt builder.
type Settings struct {
	TaskDatabaseID string
	// TaskLimit overrides the per-template result cap when positive.
	TaskLimit    int
	VaultPath    string
	SkillContent string
	Location     *time.Location
	Tasks        TaskProperties
}

// PromptContext is the data passed to a template body.
type PromptContext struct {
	Date           string
	NextDate       string
	Weekday        string
	WindowStart    string
	WindowEnd      string
	TaskDatabaseID string
	TaskLimit      int
	VaultPath      string
	SkillContent   string
	Tasks          TaskProperties
	// DailyNote is the vault-relative path of the day's note.
	DailyNote string
	// Request is the user's free-form request for request-driven variants.
	Request  string
	Template *Template
}

type buildInput struct {
	request string
}

// BuildOption adds per-run input to a prompt.
type BuildOption func(*buildInput)

// WithRequest passes the user's request to request-driven variants.
func WithRequest(text string) BuildOption {
	return func(in *buildInput) { in.request = strings.TrimSpace(text) }
}

// Builder renders prompts for the registered variants.
type Builder struct {
	templates map[string]*Template
	settings  Settings
}

// NewBuilder creates a prompt builder over the given templates.
func NewBuilder(templates map[string]*Template, settings Settings) *Builder {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	if settings.Tasks == (TaskProperties{}) {
		settings.Tasks = DefaultTaskProperties
	}
	return &Builder{templates: templates, settings: settings}
}

// Template returns the template registered for variant.
func (b *Builder) Template(variant string) (*Template, error) {
	t, ok := b.templates[variant]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownVariant, "%q (available: %s)", variant, strings.Join(Names(b.templates), ", "))
	}
	return t, nil
}

// Variants returns the sorted variant names.
func (b *Builder) Variants() []string {
	return Names(b.templates)
}

// Context computes the prompt context of variant for the instant now.
func (b *Builder) Context(variant string, now time.Time, opts ...BuildOption) (*PromptContext, error) {
	t, err := b.Template(variant)
	if err != nil {
		return nil, err
	}
	var in buildInput
	for _, opt := range opts {
		opt(&in)
	}
	if t.RequiresRequest && in.request == "" {
		return nil, errors.Wrapf(ErrEmptyRequest, "variant %s", variant)
	}

	local := now.In(b.settings.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, b.settings.Location)
	start := today.AddDate(0, 0, t.Offset)
	end := start.AddDate(0, 0, t.Days)

	limit := t.TaskLimit
	if b.settings.TaskLimit > 0 {
		limit = b.settings.TaskLimit
	}

	date := today.Format(dateLayout)
	dailyNote := filepath.ToSlash(filepath.Join(DailyDir, date+".md"))
	if t.RequiresDailyNote {
		if err := b.checkDailyNote(dailyNote); err != nil {
			return nil, err
		}
	}

	return &PromptContext{
		Date:           date,
		NextDate:       today.AddDate(0, 0, 1).Format(dateLayout),
		Weekday:        today.Weekday().String(),
		WindowStart:    start.Format(time.RFC3339),
		WindowEnd:      end.Format(time.RFC3339),
		TaskDatabaseID: b.settings.TaskDatabaseID,
		TaskLimit:      limit,
		VaultPath:      b.settings.VaultPath,
		SkillContent:   b.settings.SkillContent,
		Tasks:          b.settings.Tasks,
		DailyNote:      dailyNote,
		Request:        in.request,
		Template:       t,
	}, nil
}

func (b *Builder) checkDailyNote(rel string) error {
	if b.settings.VaultPath == "" {
		return errors.Wrapf(ErrMissingDailyNote, "%s (vault path is not configured)", rel)
	}
	path := filepath.Join(b.settings.VaultPath, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrMissingDailyNote, "%s", path)
		}
		return errors.Wrapf(err, "failed to check daily note %s", path)
	}
	if info.IsDir() {
		return errors.Wrapf(ErrMissingDailyNote, "%s is a directory", path)
	}
	return nil
}

// Build renders the full prompt for variant: the data-gathering steps from
// the template body, then the output template, then the formatting contract.
func (b *Builder) Build(variant string, now time.Time, opts ...BuildOption) (string, error) {
	pctx, err := b.Context(variant, now, opts...)
	if err != nil {
		return "", err
	}
	t := pctx.Template

	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, pctx); err != nil {
		return "", errors.Wrapf(err, "failed to render template %s", t.Name)
	}
	var title strings.Builder
	if err := t.titleTmpl.Execute(&title, pctx); err != nil {
		return "", errors.Wrapf(err, "failed to render title of template %s", t.Name)
	}

	sb.WriteString("\n\n")
	writeOutputTemplate(&sb, t, title.String())
	sb.WriteString("\n")
	writeContract(&sb, t, title.String())
	return sb.String(), nil
}

// writeOutputTemplate lists the sections; the first one carries the title.
func writeOutputTemplate(sb *strings.Builder, t *Template, title string) {
	sb.WriteString("OUTPUT TEMPLATE (use exactly these sections, in this order, skip a section only if it has no data):\n")
	for i, s := range t.Sections {
		label := s.Label
		if i == 0 {
			label = title
		}
		fmt.Fprintf(sb, "%s <b>%s</b>\n", s.Emoji, label)
		sb.WriteString("• ...\n\n")
	}
}

func writeContract(sb *strings.Builder, t *Template, title string) {
	tags := make([]string, len(t.AllowedTags))
	for i, tag := range t.AllowedTags {
		tags[i] = "<" + tag + ">"
	}

	sb.WriteString("CRITICAL OUTPUT FORMAT:\n")
	sb.WriteString("- Return ONLY raw HTML for Telegram (parse_mode=HTML)\n")
	fmt.Fprintf(sb, "- Allowed tags: %s. No other tags.\n", strings.Join(tags, ", "))
	fmt.Fprintf(sb, "- NO markdown: no %s\n", strings.Join(t.ForbiddenMarkdown, ", no "))
	fmt.Fprintf(sb, "- Start directly with %s <b>%s</b>\n", t.Sections[0].Emoji, title)
	fmt.Fprintf(sb, "- Maximum %d characters\n", t.MaxChars)
	sb.WriteString("- No preamble, no explanations, no HTML comments\n")
}
