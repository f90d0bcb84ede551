package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSkill(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	skillPath := filepath.Join(root, SkillFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(skillPath), 0o755))
	require.NoError(t, os.WriteFile(skillPath, []byte(`---
name: dbrain-processor
description: Classify and route vault entries
---

# Processor

Route each entry to the right folder.
`), 0o644))

	skill, err := LoadSkill(root)
	require.NoError(t, err)
	require.NotNil(t, skill)
	assert.Equal(t, "dbrain-processor", skill.Name)
	assert.Equal(t, "Classify and route vault entries", skill.Description)
	assert.Equal(t, "# Processor\n\nRoute each entry to the right folder.", skill.Body)
	assert.Equal(t, skill.Body, skill.Content())
	assert.Equal(t, skillPath, skill.Path)
}

func TestLoadSkillWithoutFrontmatter(t *testing.T) {
	root := t.TempDir()
	skillPath := filepath.Join(root, SkillFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(skillPath), 0o755))
	require.NoError(t, os.WriteFile(skillPath, []byte("Just instructions.\n"), 0o644))

	skill, err := LoadSkill(root)
	require.NoError(t, err)
	assert.Equal(t, "Just instructions.", skill.Content())
	assert.Empty(t, skill.Name)
}

func TestLoadSkillMissing(t *testing.T) {
	skill, err := LoadSkill(filepath.Join(t.TempDir(), "vault"))
	require.NoError(t, err)
	assert.Nil(t, skill)
	assert.Equal(t, "", skill.Content())
}

func TestLoadSkillIgnoresVaultParent(t *testing.T) {
	parent := t.TempDir()
	skillPath := filepath.Join(parent, SkillFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(skillPath), 0o755))
	require.NoError(t, os.WriteFile(skillPath, []byte("Outside the vault.\n"), 0o644))

	skill, err := LoadSkill(filepath.Join(parent, "vault"))
	require.NoError(t, err)
	assert.Nil(t, skill)
}
