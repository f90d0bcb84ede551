// Package report holds the report variants (morning, evening, weekly, ...) and
// builds the agent prompt for each of them.
//
// A variant is a markdown file: YAML frontmatter carries the formatting
// contract (title, character cap, allowed tags, emoji markers, sections) and
// the body is a text/template describing the data-gathering steps.
package report

import (
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.md
var builtinFS embed.FS

// ErrUnknownVariant is returned when no template is registered under a name.
var ErrUnknownVariant = errors.New("unknown report variant")

// Section is one labelled block of the output template.
type Section struct {
	Emoji string `yaml:"emoji"`
	Label string `yaml:"label"`
}

// Metadata is the frontmatter of a template file.
type Metadata struct {
	Name              string    `yaml:"name"`
	Title             string    `yaml:"title"`
	Description       string    `yaml:"description"`
	MaxChars          int       `yaml:"max_chars"`
	Days              int       `yaml:"days"`
	Offset            int       `yaml:"offset"`
	TaskLimit         int       `yaml:"task_limit"`
	AllowedTags       []string  `yaml:"allowed_tags"`
	ForbiddenMarkdown []string  `yaml:"forbidden_markdown"`
	EmojiMarkers      []string  `yaml:"emoji_markers"`
	Sections          []Section `yaml:"sections"`
	SaveSummary       bool      `yaml:"save_summary"`
	// RequiresDailyNote makes Build fail when daily/<date>.md is missing
	// from the vault.
	RequiresDailyNote bool `yaml:"requires_daily_note"`
	// RequiresRequest marks variants driven by a free-form user request.
	RequiresRequest bool `yaml:"requires_request"`
}

// Template is a parsed report variant.
type Template struct {
	Metadata
	Body string
	// Source is the file the template was loaded from.
	Source string

	tmpl      *template.Template
	titleTmpl *template.Template
}

var (
	defaultAllowedTags       = []string{"b", "i", "code"}
	defaultForbiddenMarkdown = []string{"**", "##", "---", "| tables |", "```", "[links](url)"}
)

// Markers returns the section emoji followed by any extra emoji markers.
func (t *Template) Markers() []string {
	markers := make([]string, 0, len(t.Sections)+len(t.EmojiMarkers))
	for _, s := range t.Sections {
		if s.Emoji != "" {
			markers = append(markers, s.Emoji)
		}
	}
	return append(markers, t.EmojiMarkers...)
}

// Builtin returns the templates shipped with the binary.
func Builtin() (map[string]*Template, error) {
	return LoadFS(builtinFS, "templates")
}

// LoadDir loads all *.md templates from a directory on disk.
func LoadDir(dir string) (map[string]*Template, error) {
	return LoadFS(os.DirFS(dir), ".")
}

// Load returns the built-in templates, overridden or extended by the
// templates in dir when dir is non-empty.
func Load(dir string) (map[string]*Template, error) {
	templates, err := Builtin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load built-in templates")
	}
	if dir == "" {
		return templates, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Wrapf(err, "templates directory %s", dir)
	}
	overrides, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for name, t := range overrides {
		templates[name] = t
	}
	return templates, nil
}

// LoadFS parses every *.md file under dir in fsys.
func LoadFS(fsys fs.FS, dir string) (map[string]*Template, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read templates from %s", dir)
	}

	templates := make(map[string]*Template)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		p := path.Join(dir, entry.Name())
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read template %s", p)
		}
		t, err := Parse(p, content)
		if err != nil {
			return nil, err
		}
		if _, exists := templates[t.Name]; exists {
			return nil, errors.Errorf("duplicate template name %q in %s", t.Name, p)
		}
		templates[t.Name] = t
	}
	return templates, nil
}

// Parse parses a single template file.
func Parse(source string, content []byte) (*Template, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrapf(err, "failed to parse template %s", source)
	}

	raw := meta.Get(pctx)
	if len(raw) == 0 {
		return nil, errors.Errorf("template %s: missing frontmatter", source)
	}

	// goldmark-meta yields loosely typed maps; round-trip through yaml to get
	// the typed metadata.
	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "template %s: failed to encode frontmatter", source)
	}
	var m Metadata
	if err := yaml.Unmarshal(encoded, &m); err != nil {
		return nil, errors.Wrapf(err, "template %s: invalid frontmatter", source)
	}

	t := &Template{Metadata: m, Body: extractBody(string(content)), Source: source}
	if err := t.normalize(); err != nil {
		return nil, errors.Wrapf(err, "template %s", source)
	}

	t.tmpl, err = template.New(t.Name).Funcs(funcMap).Parse(t.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "template %s: failed to parse body", source)
	}
	t.titleTmpl, err = template.New(t.Name + "-title").Funcs(funcMap).Parse(t.Title)
	if err != nil {
		return nil, errors.Wrapf(err, "template %s: failed to parse title", source)
	}
	return t, nil
}

func (t *Template) normalize() error {
	if t.Name == "" {
		return errors.New("name is required in frontmatter")
	}
	if t.MaxChars <= 0 {
		return errors.New("max_chars must be positive")
	}
	if len(t.Sections) == 0 {
		return errors.New("at least one section is required")
	}
	if t.Title == "" {
		t.Title = t.Sections[0].Label
	}
	if t.Days <= 0 {
		t.Days = 1
	}
	if len(t.AllowedTags) == 0 {
		t.AllowedTags = defaultAllowedTags
	}
	if len(t.ForbiddenMarkdown) == 0 {
		t.ForbiddenMarkdown = defaultForbiddenMarkdown
	}
	return nil
}

// Names returns the sorted template names.
func Names(templates map[string]*Template) []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// extractBody removes YAML frontmatter and returns the body
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Trim(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}

var funcMap = template.FuncMap{
	"join": strings.Join,
}
