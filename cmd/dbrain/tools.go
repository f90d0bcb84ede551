package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/dbrain/pkg/config"
	"github.com/jingkaihe/dbrain/pkg/presenter"
	"github.com/jingkaihe/dbrain/pkg/toolconfig"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Check the MCP servers the agent is configured with",
	Long: `Start every MCP server listed in the agent's tool configuration, run the
handshake and list its tools. Use it when reports say a tool was unavailable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return runTools(cmd.Context(), cfg, asJSON, timeout, os.Stdout, presenter.New())
	},
}

func init() {
	toolsCmd.Flags().Bool("json", false, "print the results as JSON")
	toolsCmd.Flags().Duration("timeout", toolconfig.DefaultCheckTimeout, "timeout per server")
}

func runTools(ctx context.Context, cfg config.Config, asJSON bool, timeout time.Duration, w io.Writer, out presenter.Presenter) error {
	tc, err := toolconfig.Load(cfg.Agent.ToolConfig)
	if err != nil {
		return err
	}
	statuses := toolconfig.Check(ctx, tc, timeout)

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	out.Section(cfg.Agent.ToolConfig)
	if len(statuses) == 0 {
		out.Warning("no MCP servers configured")
		return nil
	}
	for _, st := range statuses {
		detail := st.Error
		if st.OK {
			detail = fmt.Sprintf("%d tools in %s", len(st.Tools), st.Duration.Round(time.Millisecond))
		}
		out.Check(st.OK, fmt.Sprintf("%s (%s)", st.Name, st.Type), detail)
	}
	return nil
}
