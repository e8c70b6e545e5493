package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cfgpkg "github.com/imcyee/superstream-sub000/internal/config"
	"github.com/imcyee/superstream-sub000/internal/fanout"
	rtpkg "github.com/imcyee/superstream-sub000/internal/runtime"
	logpkg "github.com/imcyee/superstream-sub000/pkg/log"
)

var version = "dev"

func newLogger(cfg cfgpkg.Config) logpkg.Logger {
	level, err := logpkg.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logpkg.InfoLevel
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if cfg.LogFormat == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
}

func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, cfg.Validate()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "superstream",
		Short: "superstream activity-feed runtime CLI",
		Long:  "superstream is an activity-feed fanout engine. This CLI runs the fanout worker and basic operations.",
	}
	rootCmd.PersistentFlags().String("config", "", "path to JSON or YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "override the data directory")
	rootCmd.PersistentFlags().String("log-level", "", "override the log level")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the fanout worker loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			rt, err := rtpkg.Open(rtpkg.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer rt.Close()

			identity, _ := cmd.Flags().GetString("manager")
			// Follower resolution lives in the surrounding application; a
			// standalone worker resolves nobody and only executes jobs
			// produced elsewhere against the shared storage.
			if _, err := rt.NewManager(identity, func(context.Context, string) (map[fanout.Priority][]string, error) {
				return nil, nil
			}, nil); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info("fanout worker started",
				logpkg.F("storage", cfg.Storage), logpkg.F("transport", cfg.Queue.Transport))
			err = rt.RunWorker(ctx)
			if ctx.Err() != nil {
				logger.Info("fanout worker stopped")
				return nil
			}
			return err
		},
	}
	workerCmd.Flags().String("manager", "user-feed", "manager identity this worker serves")
	rootCmd.AddCommand(workerCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Open the configured backends and verify they answer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := rtpkg.Open(rtpkg.Options{Config: cfg, Logger: newLogger(cfg)})
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.CheckHealth(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	rootCmd.AddCommand(checkCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(*cobra.Command, []string) {
			fmt.Println("superstream", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
