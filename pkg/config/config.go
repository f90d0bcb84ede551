// Package config resolves the run configuration once at startup from
// flags, environment, .env files and an optional config.yaml.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key looked up in the
// environment, e.g. DBRAIN_TELEGRAM_TOKEN.
const EnvPrefix = "DBRAIN"

// ErrMissingCredential is returned when the bot token is not configured.
var ErrMissingCredential = errors.New("telegram bot token is not configured")

type TelegramConfig struct {
	Token   string        `mapstructure:"token"`
	ChatID  string        `mapstructure:"chat_id"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AgentConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	// ToolConfig is the MCP configuration handed to the agent. Defaults to
	// mcp-config.json in WorkDir.
	ToolConfig string `mapstructure:"tool_config"`
	// WorkDir defaults to the parent directory of the vault.
	WorkDir         string            `mapstructure:"work_dir"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	MCPTimeout      time.Duration     `mapstructure:"mcp_timeout"`
	MaxOutputTokens int               `mapstructure:"max_output_tokens"`
	TodoistAPIKey   string            `mapstructure:"todoist_api_key"`
	GoogleCreds     string            `mapstructure:"google_credentials"`
	Env             map[string]string `mapstructure:"env"`
}

type VaultConfig struct {
	Path string `mapstructure:"path"`
}

type NotionConfig struct {
	Token           string        `mapstructure:"token"`
	TasksDatabaseID string        `mapstructure:"tasks_database_id"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	// Property names of the task database.
	TitleProperty    string `mapstructure:"title_property"`
	DueProperty      string `mapstructure:"due_property"`
	StatusProperty   string `mapstructure:"status_property"`
	DoneStatus       string `mapstructure:"done_status"`
	InProgressStatus string `mapstructure:"in_progress_status"`
	NewStatus        string `mapstructure:"new_status"`
	ProjectProperty  string `mapstructure:"project_property"`
}

type ReportConfig struct {
	TemplatesDir string `mapstructure:"templates_dir"`
	// Timezone is an IANA name; empty means the local zone.
	Timezone  string `mapstructure:"timezone"`
	TaskLimit int    `mapstructure:"task_limit"`
}

type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Sampler string  `mapstructure:"sampler"`
	Ratio   float64 `mapstructure:"ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the whole run configuration. It is built once and passed
// explicitly to every stage.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Notion   NotionConfig   `mapstructure:"notion"`
	Report   ReportConfig   `mapstructure:"report"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Log      LogConfig      `mapstructure:"log"`
	DryRun   bool           `mapstructure:"dry_run"`
}

// legacyEnv maps keys to the unprefixed variable names used by existing
// deployments' .env files. Prefixed names always win.
var legacyEnv = map[string][]string{
	"telegram.token":           {"TELEGRAM_BOT_TOKEN"},
	"telegram.chat_id":         {"ALLOWED_USER_IDS", "TELEGRAM_CHAT_ID"},
	"vault.path":               {"VAULT_PATH"},
	"agent.todoist_api_key":    {"TODOIST_API_KEY"},
	"agent.google_credentials": {"GOOGLE_APPLICATION_CREDENTIALS"},
	"notion.token":             {"NOTION_TOKEN"},
	"notion.tasks_database_id": {"NOTION_TASKS_DB_ID"},
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 30*time.Second)

	v.SetDefault("agent.command", "claude")
	_ = v.BindEnv("agent.args")
	v.SetDefault("agent.tool_config", "")
	v.SetDefault("agent.work_dir", "")
	v.SetDefault("agent.timeout", time.Duration(0))
	v.SetDefault("agent.mcp_timeout", 30*time.Second)
	v.SetDefault("agent.max_output_tokens", 50000)
	v.SetDefault("agent.todoist_api_key", "")
	v.SetDefault("agent.google_credentials", "")

	v.SetDefault("vault.path", "./vault")

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.tasks_database_id", "")
	v.SetDefault("notion.base_url", "https://api.notion.com")
	v.SetDefault("notion.timeout", 30*time.Second)
	v.SetDefault("notion.title_property", "Task")
	v.SetDefault("notion.due_property", "Due")
	v.SetDefault("notion.status_property", "Status")
	v.SetDefault("notion.done_status", "Done")
	v.SetDefault("notion.in_progress_status", "In progress")
	v.SetDefault("notion.new_status", "Not started")
	v.SetDefault("notion.project_property", "Project")

	v.SetDefault("report.templates_dir", "")
	v.SetDefault("report.timezone", "")
	v.SetDefault("report.task_limit", 0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampler", "ratio")
	v.SetDefault("tracing.ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("dry_run", false)

	for key, names := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}
}

// LoadEnvFiles loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	existing := lo.Filter(lo.Uniq(paths), func(p string, _ int) bool {
		if p == "" {
			return false
		}
		_, err := os.Stat(p)
		return err == nil
	})
	if len(existing) == 0 {
		return nil
	}
	return errors.Wrap(godotenv.Load(existing...), "failed to load env file")
}

// Load reads the configuration from v and fills derived defaults.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal configuration")
	}
	cfg.Telegram.ChatID = ParseRecipient(cfg.Telegram.ChatID)
	cfg.applyDerived()
	return cfg, nil
}

func (c *Config) applyDerived() {
	if c.Vault.Path != "" {
		if abs, err := filepath.Abs(c.Vault.Path); err == nil {
			c.Vault.Path = abs
		}
	}
	if c.Agent.WorkDir == "" && c.Vault.Path != "" {
		c.Agent.WorkDir = filepath.Dir(c.Vault.Path)
	}
	if c.Agent.ToolConfig == "" && c.Agent.WorkDir != "" {
		c.Agent.ToolConfig = filepath.Join(c.Agent.WorkDir, "mcp-config.json")
	}
}

// ParseRecipient turns a configured recipient value such as "[123456]" or
// "123, 456" into a single chat id: brackets, quotes and whitespace are
// stripped and the first entry wins.
func ParseRecipient(raw string) string {
	cleaned := strings.NewReplacer("[", "", "]", "", `"`, "", "'", "").Replace(raw)
	entries := lo.Compact(lo.Map(strings.Split(cleaned, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	if len(entries) == 0 {
		return ""
	}
	return entries[0]
}

// RequireCredential fails when the bot token is missing. It is the only
// configuration problem that stops a run before any network call.
func (c Config) RequireCredential() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingCredential
	}
	return nil
}

// Validate reports every configuration problem at once. Credentials are
// checked separately by RequireCredential since not every command needs them.
func (c Config) Validate() error {
	var result *multierror.Error

	if _, err := c.Location(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Agent.Command == "" {
		result = multierror.Append(result, errors.New("agent.command must not be empty"))
	}
	if c.Agent.Timeout < 0 {
		result = multierror.Append(result, errors.Errorf("agent.timeout must not be negative, got %s", c.Agent.Timeout))
	}
	if c.Agent.MCPTimeout < 0 {
		result = multierror.Append(result, errors.Errorf("agent.mcp_timeout must not be negative, got %s", c.Agent.MCPTimeout))
	}
	if c.Report.TaskLimit < 0 {
		result = multierror.Append(result, errors.Errorf("report.task_limit must not be negative, got %d", c.Report.TaskLimit))
	}
	if !lo.Contains([]string{"", "text", "json", "fmt"}, c.Log.Format) {
		result = multierror.Append(result, errors.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Tracing.Ratio < 0 || c.Tracing.Ratio > 1 {
		result = multierror.Append(result, errors.Errorf("tracing.ratio must be between 0 and 1, got %v", c.Tracing.Ratio))
	}

	return result.ErrorOrNil()
}

// Location returns the time zone reports are dated in.
func (c Config) Location() (*time.Location, error) {
	if c.Report.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid report.timezone %q", c.Report.Timezone)
	}
	return loc, nil
}

// AgentEnv returns the credentials exported to the agent process.
func (c Config) AgentEnv() map[string]string {
	env := lo.MapEntries(c.Agent.Env, func(k, v string) (string, string) {
		return strings.ToUpper(k), v
	})
	set := func(k, v string) {
		if v != "" {
			env[k] = v
		}
	}
	set("TODOIST_API_KEY", c.Agent.TodoistAPIKey)
	set("NOTION_TOKEN", c.Notion.Token)
	set("GOOGLE_APPLICATION_CREDENTIALS", c.Agent.GoogleCreds)
	return env
}

// EnvFileCandidates lists the .env files consulted by default: the one next
// to the vault and the one in the working directory.
func EnvFileCandidates(vaultPath string) []string {
	candidates := []string{".env"}
	if vaultPath != "" {
		if abs, err := filepath.Abs(vaultPath); err == nil {
			candidates = append([]string{filepath.Join(filepath.Dir(abs), ".env")}, candidates...)
		}
	}
	return candidates
}
