package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// SkillFile is the processing skill, relative to the vault root.
const SkillFile = ".claude/skills/dbrain-processor/SKILL.md"

// Skill is the agent's processing skill description.
type Skill struct {
	Name        string
	Description string
	Body        string
	Path        string
}

// SkillPath returns the location of the skill file for the vault at root.
func SkillPath(root string) string {
	return filepath.Join(root, SkillFile)
}

// LoadSkill reads the skill for the vault at root. A missing file yields a
// nil skill and no error.
func LoadSkill(root string) (*Skill, error) {
	path := SkillPath(root)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read skill file %s", path)
	}

	gm := goldmark.New(goldmark.WithExtensions(meta.Meta))
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := gm.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrapf(err, "failed to parse skill file %s", path)
	}

	skill := &Skill{Path: path, Body: strings.TrimSpace(stripFrontmatter(string(content)))}
	fm := meta.Get(pctx)
	if name, ok := fm["name"].(string); ok {
		skill.Name = name
	}
	if desc, ok := fm["description"].(string); ok {
		skill.Description = desc
	}
	return skill, nil
}

// Content returns the text included in prompts.
func (s *Skill) Content() string {
	if s == nil {
		return ""
	}
	return s.Body
}

func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content
	}
	rest = rest[end+4:]
	return strings.TrimPrefix(strings.TrimPrefix(rest, "\r"), "\n")
}
