package presenter

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPresenter() (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewWithOptions(&out, &errOut, ColorNever), &out, &errOut
}

func TestNew(t *testing.T) {
	p := New()
	assert.Equal(t, os.Stdout, p.output)
	assert.Equal(t, os.Stderr, p.errorOutput)
	assert.False(t, p.IsQuiet())
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name     string
		noColor  string
		dbColor  string
		expected ColorMode
	}{
		{"NO_COLOR set", "1", "", ColorNever},
		{"DBRAIN_COLOR always", "", "always", ColorAlways},
		{"DBRAIN_COLOR force", "", "force", ColorAlways},
		{"DBRAIN_COLOR never", "", "never", ColorNever},
		{"DBRAIN_COLOR off", "", "off", ColorNever},
		{"default", "", "", ColorAuto},
		{"unknown value", "", "sometimes", ColorAuto},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("DBRAIN_COLOR", tt.dbColor)
			assert.Equal(t, tt.expected, detectColorMode())
		})
	}
}

func TestMessages(t *testing.T) {
	p, out, errOut := newTestPresenter()

	p.Success("delivered")
	p.Warning("plain text fallback")
	p.Info("hello")
	p.Error(errors.New("boom"), "deliver")
	p.Error(errors.New("bare"), "")
	p.Error(nil, "ignored")

	assert.Equal(t, "✓ delivered\n⚠ plain text fallback\nhello\n", out.String())
	assert.Equal(t, "[ERROR] deliver: boom\n[ERROR] bare\n", errOut.String())
}

func TestSectionAndField(t *testing.T) {
	p, out, _ := newTestPresenter()

	p.Section("Run")
	p.Field("variant", "morning")
	p.Field("attempts", 2)

	assert.Equal(t, "Run\n---\nvariant:       morning\nattempts:      2\n", out.String())
}

func TestCheck(t *testing.T) {
	p, out, _ := newTestPresenter()

	p.Check(true, "todoist", "12 tools")
	p.Check(false, "calendar", "connection refused")
	p.Check(true, "notion", "")

	assert.Equal(t, "✓ todoist: 12 tools\n✗ calendar: connection refused\n✓ notion\n", out.String())
}

func TestQuiet(t *testing.T) {
	p, out, errOut := newTestPresenter()
	p.SetQuiet(true)

	p.Success("x")
	p.Warning("x")
	p.Info("x")
	p.Section("x")
	p.Field("k", "v")
	p.Check(true, "x", "")
	p.Separator()
	assert.Empty(t, out.String())

	p.Report("🌅 <b>Morning</b>\n\n")
	p.Error(errors.New("still shown"), "")
	assert.Equal(t, "🌅 <b>Morning</b>\n", out.String())
	assert.Contains(t, errOut.String(), "still shown")
}
