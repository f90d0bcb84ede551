package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/dbrain/pkg/config"
	"github.com/jingkaihe/dbrain/pkg/logger"
)

func init() {
	config.SetDefaults(viper.GetViper())

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.dbrain")
	viper.AddConfigPath(".")
}

var rootCmd = &cobra.Command{
	Use:   "dbrain",
	Short: "Daily and weekly reports from your second brain, delivered to Telegram",
	Long: `dbrain asks a tool-calling agent to gather your calendar, tasks and notes,
cleans up what it writes and sends the result to Telegram.

It is meant to be run once per report by a scheduler, e.g.:
  0 7 * * *   dbrain morning
  0 21 * * *  dbrain evening
  0 18 * * 0  dbrain weekly`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// loadConfig resolves the configuration: the config file, then .env files
// (which never override the process environment), then viper.
func loadConfig() (config.Config, error) {
	v := viper.GetViper()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, errors.Wrapf(err, "failed to read config file %s", path)
		}
	} else if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config.Config{}, errors.Wrap(err, "failed to read config file")
		}
	}

	envFiles := config.EnvFileCandidates(v.GetString("vault.path"))
	if extra := v.GetString("env_file"); extra != "" {
		if _, err := os.Stat(extra); err != nil {
			return config.Config{}, errors.Wrapf(err, "env file %s", extra)
		}
		envFiles = append(envFiles, extra)
	}
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func setupLogging() error {
	logger.SetLogFormat(viper.GetString("log.format"))
	if err := logger.SetLogLevel(viper.GetString("log.level")); err != nil {
		return errors.Wrapf(err, "invalid log level %q", viper.GetString("log.level"))
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.dbrain/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().String("env-file", "", "additional .env file with credentials")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().String("vault", "", "path of the vault (overrides VAULT_PATH)")
	rootCmd.PersistentFlags().String("chat-id", "", "Telegram chat id to deliver to (overrides ALLOWED_USER_IDS)")
	rootCmd.PersistentFlags().Bool("dry-run", false, "print reports instead of sending them")

	viper.BindPFlag("config_file", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("env_file", rootCmd.PersistentFlags().Lookup("env-file"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("vault.path", rootCmd.PersistentFlags().Lookup("vault"))
	viper.BindPFlag("telegram.chat_id", rootCmd.PersistentFlags().Lookup("chat-id"))
	viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))

	rootCmd.AddCommand(withTracing(morningCmd))
	rootCmd.AddCommand(withTracing(eveningCmd))
	rootCmd.AddCommand(withTracing(weeklyCmd))
	rootCmd.AddCommand(withTracing(processCmd))
	rootCmd.AddCommand(withTracing(doCmd))
	rootCmd.AddCommand(withTracing(runCmd))
	tasksCmd.AddCommand(withTracing(tasksAddCmd))
	rootCmd.AddCommand(withTracing(tasksCmd))
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		cancel()
		os.Exit(1)
	}
}
