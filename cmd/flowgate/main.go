package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/flowgate/flowgate/internal/app"
	"github.com/flowgate/flowgate/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run prepares the rule store so an embedding process can serve decisions:
// it loads configuration, migrates the schema and reports the configured
// admin principals.
func run(args []string) error {
	fs := flag.NewFlagSet("flowgate", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	paths := []string{}
	if configPath != "" {
		paths = append(paths, configPath)
	}

	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	stack, err := bootstrapRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Shutdown(); err != nil {
			log.Warn("database close failed", zap.Error(err))
		}
	}()

	log.Info("authorization store ready",
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("checks_enabled", stack.Settings.Enabled()),
		zap.Strings("admin_users", stack.Settings.AdminUsers()),
		zap.Strings("admin_groups", stack.Settings.AdminGroups()))
	return nil
}
