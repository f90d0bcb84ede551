package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/dbrain/pkg/config"
	"github.com/jingkaihe/dbrain/pkg/notion"
)

// TasksConfig holds the options of the tasks command.
type TasksConfig struct {
	Query notion.QueryType
	Limit int
	Send  bool
}

func NewTasksConfig() *TasksConfig {
	return &TasksConfig{Query: notion.All, Limit: notion.DefaultLimit}
}

var tasksCmd = &cobra.Command{
	Use:   "tasks [overdue|today|tomorrow|in_progress|all]",
	Short: "List tasks straight from the task database",
	Long: `Query the task database directly, without the agent, and print the
result or send it to Telegram.

Examples:
  dbrain tasks              # all open tasks
  dbrain tasks overdue
  dbrain tasks today --send`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := getTasksConfigFromFlags(cmd, args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runTasks(cmd.Context(), cfg, tc, os.Stdout)
	},
}

func init() {
	defaults := NewTasksConfig()
	tasksCmd.Flags().Int("limit", defaults.Limit, "maximum number of tasks")
	tasksCmd.Flags().Bool("send", defaults.Send, "send the list to Telegram instead of printing it")
}

func getTasksConfigFromFlags(cmd *cobra.Command, args []string) (*TasksConfig, error) {
	tc := NewTasksConfig()
	if len(args) == 1 {
		q, err := notion.ParseQueryType(args[0])
		if err != nil {
			return nil, err
		}
		tc.Query = q
	}
	if limit, err := cmd.Flags().GetInt("limit"); err == nil {
		tc.Limit = limit
	}
	if send, err := cmd.Flags().GetBool("send"); err == nil {
		tc.Send = send
	}
	return tc, nil
}

func newNotionClient(cfg config.Config) (*notion.Client, error) {
	if cfg.Notion.Token == "" {
		return nil, errors.New("notion token is not configured (NOTION_TOKEN)")
	}
	if cfg.Notion.TasksDatabaseID == "" {
		return nil, errors.New("notion tasks database is not configured (DBRAIN_NOTION_TASKS_DATABASE_ID)")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return notion.NewClient(cfg.Notion.Token, cfg.Notion.TasksDatabaseID,
		notion.WithBaseURL(cfg.Notion.BaseURL),
		notion.WithTimeout(cfg.Notion.Timeout),
		notion.WithLocation(loc),
		notion.WithProperties(notion.Properties{
			Title:            cfg.Notion.TitleProperty,
			Due:              cfg.Notion.DueProperty,
			Status:           cfg.Notion.StatusProperty,
			DoneStatus:       cfg.Notion.DoneStatus,
			InProgressStatus: cfg.Notion.InProgressStatus,
			NewStatus:        cfg.Notion.NewStatus,
			Project:          cfg.Notion.ProjectProperty,
		}),
	), nil
}

func runTasks(ctx context.Context, cfg config.Config, tc *TasksConfig, w io.Writer) error {
	if tc.Send {
		if err := cfg.RequireCredential(); err != nil {
			return err
		}
	}
	client, err := newNotionClient(cfg)
	if err != nil {
		return err
	}

	tasks, err := client.QueryTasks(ctx, tc.Query, tc.Limit)
	if err != nil {
		return err
	}
	text := notion.FormatTasks(tasks, tc.Query)

	if !tc.Send {
		fmt.Fprintln(w, text)
		return nil
	}

	out := newDeliverer(cfg).ForVariant("tasks").Deliver(ctx, text)
	if !out.Sent() {
		reason := out.Description
		if out.Err != nil {
			reason = out.Err.Error()
		}
		return errors.Errorf("failed to send task list: %s", strings.TrimSpace(reason))
	}
	fmt.Fprintf(w, "sent %d tasks (%s)\n", len(tasks), out.Status)
	return nil
}

// TaskAddConfig holds the options of the tasks add command.
type TaskAddConfig struct {
	Title   string
	Due     string
	Project string
	Send    bool
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task in the task database",
	Long: `Create a task directly in the task database and print a confirmation,
or send it to Telegram.

Examples:
  dbrain tasks add "Call the bank"
  dbrain tasks add "Renew passport" --due 2026-04-01 --project Admin
  dbrain tasks add "Buy milk" --due tomorrow --send`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ac := getTaskAddConfigFromFlags(cmd, args)
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runTaskAdd(cmd.Context(), cfg, ac, os.Stdout)
	},
}

func init() {
	tasksAddCmd.Flags().String("due", "", "due date: today, tomorrow or YYYY-MM-DD")
	tasksAddCmd.Flags().String("project", "", "project tag")
	tasksAddCmd.Flags().Bool("send", false, "send the confirmation to Telegram instead of printing it")
}

func getTaskAddConfigFromFlags(cmd *cobra.Command, args []string) *TaskAddConfig {
	ac := &TaskAddConfig{Title: strings.TrimSpace(strings.Join(args, " "))}
	if due, err := cmd.Flags().GetString("due"); err == nil {
		ac.Due = due
	}
	if project, err := cmd.Flags().GetString("project"); err == nil {
		ac.Project = strings.TrimSpace(project)
	}
	if send, err := cmd.Flags().GetBool("send"); err == nil {
		ac.Send = send
	}
	return ac
}

func runTaskAdd(ctx context.Context, cfg config.Config, ac *TaskAddConfig, w io.Writer) error {
	if ac.Title == "" {
		return notion.ErrEmptyTitle
	}
	if ac.Send {
		if err := cfg.RequireCredential(); err != nil {
			return err
		}
	}
	client, err := newNotionClient(cfg)
	if err != nil {
		return err
	}
	due, err := client.ResolveDue(ac.Due)
	if err != nil {
		return err
	}

	task := notion.NewTask{Title: ac.Title, DueDate: due, Project: ac.Project}
	created, err := client.CreateTask(ctx, task)
	if err != nil {
		return err
	}
	text := notion.FormatCreated(task)

	if !ac.Send {
		fmt.Fprintln(w, text)
		if created.URL != "" {
			fmt.Fprintln(w, created.URL)
		}
		return nil
	}

	out := newDeliverer(cfg).ForVariant("tasks").Deliver(ctx, text)
	if !out.Sent() {
		reason := out.Description
		if out.Err != nil {
			reason = out.Err.Error()
		}
		return errors.Errorf("failed to send task confirmation: %s", strings.TrimSpace(reason))
	}
	fmt.Fprintf(w, "task created and sent (%s)\n", out.Status)
	return nil
}
