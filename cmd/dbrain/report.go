package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/dbrain/pkg/agent"
	"github.com/jingkaihe/dbrain/pkg/config"
	"github.com/jingkaihe/dbrain/pkg/logger"
	"github.com/jingkaihe/dbrain/pkg/pipeline"
	"github.com/jingkaihe/dbrain/pkg/presenter"
	"github.com/jingkaihe/dbrain/pkg/report"
	"github.com/jingkaihe/dbrain/pkg/telegram"
	"github.com/jingkaihe/dbrain/pkg/vault"
)

func newVariantCmd(variant, short string) *cobra.Command {
	return &cobra.Command{
		Use:   variant,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runReport(cmd.Context(), cfg, variant, presenter.New())
		},
	}
}

var (
	morningCmd = newVariantCmd("morning", "Generate and send the morning briefing")
	eveningCmd = newVariantCmd("evening", "Generate and send the evening review")
	weeklyCmd  = newVariantCmd("weekly", "Generate and send the weekly digest and save it to the vault")
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process today's daily note into tasks and vault notes",
	Long: `Hand the daily note (daily/<date>.md in the vault) to the agent, which
turns its entries into tasks and notes, and send the processing report.
Fails with an alert when the vault has no note for the day.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		date, _ := cmd.Flags().GetString("date")
		opts, err := dateOptions(cfg, date)
		if err != nil {
			return err
		}
		return runReport(cmd.Context(), cfg, "process", presenter.New(), opts...)
	},
}

var doCmd = &cobra.Command{
	Use:   "do <request>",
	Short: "Ask the agent to carry out a one-off request and send the result",
	Long: `Run an ad-hoc request through the agent with the vault and task tools,
then sanitize and send its report like any other variant.

Examples:
  dbrain do "move the dentist appointment to Friday"
  dbrain do add a task to renew the passport next month`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		request := strings.TrimSpace(strings.Join(args, " "))
		if request == "" {
			return errors.New("request must not be empty")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runReport(cmd.Context(), cfg, "do", presenter.New(), pipeline.WithRequest(request))
	},
}

func init() {
	processCmd.Flags().String("date", "", "process the note of this date (YYYY-MM-DD) instead of today")
}

// dateOptions pins the pipeline clock to date, given as YYYY-MM-DD in the
// report timezone. An empty date leaves the clock alone.
func dateOptions(cfg config.Config, date string) ([]pipeline.Option, error) {
	if date == "" {
		return nil, nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid date %q", date)
	}
	return []pipeline.Option{pipeline.WithClock(func() time.Time { return day })}, nil
}

var runCmd = &cobra.Command{
	Use:   "run <variant>",
	Short: "Generate and send the report defined by any loaded template",
	Long: `Generate and send a report for any variant, including ones defined by
templates in report.templates_dir. See "dbrain templates" for the list.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runReport(cmd.Context(), cfg, args[0], presenter.New())
	},
}

func newDeliverer(cfg config.Config) *telegram.Deliverer {
	client := telegram.NewClient(cfg.Telegram.Token,
		telegram.WithBaseURL(cfg.Telegram.BaseURL),
		telegram.WithTimeout(cfg.Telegram.Timeout),
	)
	return telegram.NewDeliverer(client, cfg.Telegram.ChatID, "")
}

func taskProperties(cfg config.Config) report.TaskProperties {
	return report.TaskProperties{
		Title:      cfg.Notion.TitleProperty,
		Due:        cfg.Notion.DueProperty,
		Status:     cfg.Notion.StatusProperty,
		DoneStatus: cfg.Notion.DoneStatus,
	}
}

func newBuilder(ctx context.Context, cfg config.Config) (*report.Builder, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	templates, err := report.Load(cfg.Report.TemplatesDir)
	if err != nil {
		return nil, err
	}
	skill, err := vault.LoadSkill(cfg.Vault.Path)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("ignoring unreadable skill file")
	}
	return report.NewBuilder(templates, report.Settings{
		TaskDatabaseID: cfg.Notion.TasksDatabaseID,
		TaskLimit:      cfg.Report.TaskLimit,
		VaultPath:      cfg.Vault.Path,
		SkillContent:   skill.Content(),
		Location:       loc,
		Tasks:          taskProperties(cfg),
	}), nil
}

func newRunner(cfg config.Config) *agent.CLIRunner {
	return agent.NewCLIRunner(agent.Config{
		Command:         cfg.Agent.Command,
		Args:            cfg.Agent.Args,
		ToolConfig:      cfg.Agent.ToolConfig,
		WorkDir:         cfg.Agent.WorkDir,
		Timeout:         cfg.Agent.Timeout,
		MCPTimeout:      cfg.Agent.MCPTimeout,
		MaxOutputTokens: cfg.Agent.MaxOutputTokens,
		Env:             cfg.AgentEnv(),
	})
}

// runReport runs one variant. Only configuration errors are returned; a run
// that got as far as contacting anything exits successfully.
func runReport(ctx context.Context, cfg config.Config, variant string, out presenter.Presenter, extra ...pipeline.Option) error {
	if err := cfg.RequireCredential(); err != nil {
		return err
	}
	if cfg.Telegram.ChatID == "" && !cfg.DryRun {
		logger.G(ctx).Warn("no chat id configured, nothing will be delivered")
	}

	deliverer := newDeliverer(cfg)
	builder, err := newBuilder(ctx, cfg)
	if err != nil {
		stageErr := &pipeline.StageError{Stage: pipeline.StageTemplate, ExitCode: 1, Err: err}
		logger.G(ctx).WithError(err).Error("failed to prepare report")
		if alertErr := deliverer.Alert(ctx, pipeline.FailureAlert(variant, stageErr)); alertErr != nil {
			logger.G(ctx).WithError(alertErr).Error("failed to send failure alert")
		}
		out.Error(err, "prepare report")
		return nil
	}

	var opts []pipeline.Option
	if cfg.Vault.Path != "" {
		opts = append(opts, pipeline.WithSummaries(vault.NewSummaryWriter(cfg.Vault.Path)))
	}
	opts = append(opts, extra...)
	p := pipeline.New(cfg, builder, newRunner(cfg), deliverer, opts...)

	res, err := p.Run(ctx, variant)
	if err != nil {
		return errors.Wrapf(err, "%s report", variant)
	}
	present(out, res)
	return nil
}

func present(out presenter.Presenter, res *pipeline.Result) {
	if res.Failure != nil {
		out.Error(res.Failure, fmt.Sprintf("%s report aborted", res.Variant))
		return
	}
	if res.Agent.Failed() {
		out.Warning(fmt.Sprintf("agent exited with code %d", res.Agent.ExitCode))
	}
	if res.DryRun {
		out.Section(fmt.Sprintf("%s report (dry run)", res.Variant))
		out.Report(res.Report)
		return
	}

	switch res.Delivery.Status {
	case telegram.Delivered:
		out.Success(fmt.Sprintf("%s report delivered", res.Variant))
	case telegram.DeliveredPlain:
		out.Warning(fmt.Sprintf("%s report delivered as plain text: %s", res.Variant, res.Delivery.Description))
	case telegram.AlertSent:
		out.Warning(fmt.Sprintf("%s report was empty, alert sent", res.Variant))
	default:
		err := res.Delivery.Err
		if err == nil {
			err = errors.New(res.Delivery.Description)
		}
		out.Error(err, fmt.Sprintf("%s report not delivered", res.Variant))
	}
	if res.SummaryPath != "" {
		out.Field("summary", res.SummaryPath)
	}
}
