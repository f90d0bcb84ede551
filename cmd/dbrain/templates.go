package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/dbrain/pkg/config"
)

var templatesCmd = &cobra.Command{
	Use:   "templates [variant]",
	Short: "List report variants or print the prompt of one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return listTemplates(cmd.Context(), cfg, os.Stdout)
		}
		date, _ := cmd.Flags().GetString("date")
		return renderTemplate(cmd.Context(), cfg, args[0], date, os.Stdout)
	},
}

func init() {
	templatesCmd.Flags().String("date", "", "render for this date (YYYY-MM-DD) instead of today")
}

func listTemplates(ctx context.Context, cfg config.Config, w io.Writer) error {
	builder, err := newBuilder(ctx, cfg)
	if err != nil {
		return err
	}
	for _, name := range builder.Variants() {
		t, _ := builder.Template(name)
		fmt.Fprintf(w, "%-10s %-20s max %4d chars, %d day(s)  %s\n", name, t.Title, t.MaxChars, t.Days, t.Source)
	}
	return nil
}

func renderTemplate(ctx context.Context, cfg config.Config, variant, date string, w io.Writer) error {
	builder, err := newBuilder(ctx, cfg)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	now := time.Now().In(loc)
	if date != "" {
		now, err = time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return errors.Wrapf(err, "invalid date %q", date)
		}
	}

	prompt, err := builder.Build(variant, now)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, prompt)
	return nil
}
