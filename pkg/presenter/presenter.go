// Package presenter writes user-facing CLI output: status lines, section
// headers and rendered reports, with optional colour and a quiet mode.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Presenter is the CLI output surface used by the commands.
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Field(key string, value any)
	Check(ok bool, name, detail string)
	Report(text string)
	Separator()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter writes to a terminal or any pair of writers.
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
}

var _ Presenter = (*TerminalPresenter)(nil)

type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// New creates a presenter on stdout/stderr.
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a presenter with explicit writers and colour mode.
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}
	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}
}

func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch os.Getenv("DBRAIN_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error is printed even in quiet mode.
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}
	c := color.New(color.FgRed, color.Bold)
	if context != "" {
		c.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
		return
	}
	c.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
}

func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.output, message)
}

func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}
	c := color.New(color.Bold)
	c.Fprintln(p.output, title)
	c.Fprintln(p.output, strings.Repeat("-", len([]rune(title))))
}

// Field prints an aligned "key: value" line.
func (p *TerminalPresenter) Field(key string, value any) {
	if p.quiet {
		return
	}
	color.New(color.FgCyan).Fprintf(p.output, "%-14s", key+":")
	fmt.Fprintf(p.output, " %v\n", value)
}

// Check prints a pass/fail line for a named item.
func (p *TerminalPresenter) Check(ok bool, name, detail string) {
	if p.quiet {
		return
	}
	mark, c := "✓", color.New(color.FgGreen)
	if !ok {
		mark, c = "✗", color.New(color.FgRed)
	}
	c.Fprintf(p.output, "%s %s", mark, name)
	if detail != "" {
		fmt.Fprintf(p.output, ": %s", detail)
	}
	fmt.Fprintln(p.output)
}

// Report prints a rendered report verbatim. It is not suppressed by quiet
// mode since it is the command's primary output.
func (p *TerminalPresenter) Report(text string) {
	fmt.Fprintln(p.output, strings.TrimRight(text, "\n"))
}

func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintln(p.output, strings.Repeat("-", 60))
}

func (p *TerminalPresenter) SetQuiet(quiet bool) { p.quiet = quiet }

func (p *TerminalPresenter) IsQuiet() bool { return p.quiet }

var defaultPresenter = New()

func Error(err error, context string) { defaultPresenter.Error(err, context) }
func Success(message string) { defaultPresenter.Success(message) }
func Warning(message string) { defaultPresenter.Warning(message) }
func Info(message string) { defaultPresenter.Info(message) }
func Section(title string) { defaultPresenter.Section(title) }
func Field(key string, value any) { defaultPresenter.Field(key, value) }
func Check(ok bool, name, detail string) { defaultPresenter.Check(ok, name, detail) }
func Report(text string) { defaultPresenter.Report(text) }
func Separator() { defaultPresenter.Separator() }
func SetQuiet(quiet bool) { defaultPresenter.SetQuiet(quiet) }
func IsQuiet() bool { return defaultPresenter.IsQuiet() }
