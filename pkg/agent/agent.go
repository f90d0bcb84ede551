// Package agent runs the external tool-calling LLM agent that gathers
// calendar and task data and drafts the report text.
//
// The agent is a black box: it receives the prompt and a tool-configuration
// file and returns unstructured text. A failing agent never aborts a run;
// whatever it printed is handed on to sanitization and delivery.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jingkaihe/dbrain/pkg/logger"
	"github.com/jingkaihe/dbrain/pkg/osutil"
	"github.com/pkg/errors"
)

// ToolConfigPlaceholder in Config.Args is replaced by Config.ToolConfig.
const ToolConfigPlaceholder = "{tool_config}"

const (
	DefaultCommand         = "claude"
	DefaultMCPTimeout      = 30 * time.Second
	DefaultMaxOutputTokens = 50000
)

// DefaultArgs are passed to DefaultCommand; the prompt is always appended
// as the last argument.
var DefaultArgs = []string{
	"--print",
	"--dangerously-skip-permissions",
	"--mcp-config", ToolConfigPlaceholder,
	"-p",
}

// Result is the outcome of one agent invocation.
type Result struct {
	// Output is the combined stdout and stderr of the process.
	Output   string
	ExitCode int
	// Err is set when the process could not run to completion (missing
	// binary, timeout, non-zero exit).
	Err      error
	Duration time.Duration
	TimedOut bool
}

// Failed reports whether the agent exited abnormally.
func (r Result) Failed() bool {
	return r.Err != nil || r.ExitCode != 0
}

// Runner invokes the agent synchronously.
type Runner interface {
	Run(ctx context.Context, prompt string) Result
}

// Config describes how to launch the agent process.
type Config struct {
	Command string
	Args    []string
	// ToolConfig is the path of the tool-configuration file.
	ToolConfig string
	// WorkDir is the working directory, normally the parent of the vault.
	WorkDir string
	// Timeout of zero means the agent may run for as long as it needs.
	Timeout         time.Duration
	MCPTimeout      time.Duration
	MaxOutputTokens int
	// Env is added on top of the current process environment.
	Env map[string]string
}

// CLIRunner runs the agent as a child process.
type CLIRunner struct {
	cfg Config
}

var _ Runner = (*CLIRunner)(nil)

// NewCLIRunner creates a runner, filling defaults for unset fields.
func NewCLIRunner(cfg Config) *CLIRunner {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Args == nil {
		cfg.Args = DefaultArgs
	}
	if cfg.MCPTimeout == 0 {
		cfg.MCPTimeout = DefaultMCPTimeout
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return &CLIRunner{cfg: cfg}
}

// Args returns the full argument list for prompt.
func (r *CLIRunner) Args(prompt string) []string {
	args := make([]string, 0, len(r.cfg.Args)+1)
	for i := 0; i < len(r.cfg.Args); i++ {
		arg := r.cfg.Args[i]
		if r.cfg.ToolConfig == "" && arg == "--mcp-config" &&
			i+1 < len(r.cfg.Args) && r.cfg.Args[i+1] == ToolConfigPlaceholder {
			i++
			continue
		}
		args = append(args, strings.ReplaceAll(arg, ToolConfigPlaceholder, r.cfg.ToolConfig))
	}
	return append(args, prompt)
}

// Environ returns the environment of the agent process.
func (r *CLIRunner) Environ() []string {
	env := os.Environ()
	env = append(env,
		"MCP_TIMEOUT="+strconv.FormatInt(r.cfg.MCPTimeout.Milliseconds(), 10),
		"MAX_MCP_OUTPUT_TOKENS="+strconv.Itoa(r.cfg.MaxOutputTokens),
	)
	keys := make([]string, 0, len(r.cfg.Env))
	for k := range r.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if r.cfg.Env[k] == "" {
			continue
		}
		env = append(env, fmt.Sprintf("%s=%s", k, r.cfg.Env[k]))
	}
	return env
}

// Run executes the agent and captures its combined output. It never returns
// early on a non-zero exit: the output is still the result.
func (r *CLIRunner) Run(ctx context.Context, prompt string) Result {
	log := logger.G(ctx).WithField("command", r.cfg.Command)

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.cfg.Command, r.Args(prompt)...)
	cmd.Dir = r.cfg.WorkDir
	cmd.Env = r.Environ()
	osutil.SetProcessGroup(cmd)
	osutil.SetProcessGroupKill(cmd)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.WithField("prompt_chars", len(prompt)).Info("starting agent")
	start := time.Now()
	err := cmd.Run()

	res := Result{
		Output:   strings.TrimSpace(out.String()),
		ExitCode: osutil.ExitCode(err),
		Duration: time.Since(start),
	}
	if err != nil {
		res.Err = errors.Wrapf(err, "agent %s", r.cfg.Command)
		if ctx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			res.Err = errors.Errorf("agent %s timed out after %s", r.cfg.Command, r.cfg.Timeout)
		}
	}

	fields := map[string]any{
		"exit_code":    res.ExitCode,
		"duration":     res.Duration.Round(time.Millisecond).String(),
		"output_chars": len(res.Output),
	}
	if res.Failed() {
		log.WithFields(fields).WithError(res.Err).Warn("agent exited abnormally, continuing with its output")
	} else {
		log.WithFields(fields).Info("agent finished")
	}
	return res
}
