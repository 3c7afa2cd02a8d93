package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/pulse/internal/app"
	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/pkg/logger"
)

var Cmd = &cobra.Command{
	Use:           "pulse",
	Long:          "Aggregate subscription and attribution metrics across projects and write performance reports",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var args struct {
	configPath string
	debug      bool
}

func main() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadApp reads the config and wires every component.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadFromEnv(args.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", args.configPath, err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if args.debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)
	logger.SetRedact(true)

	return app.New(ctx, cfg, logger.Default())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	flags := Cmd.PersistentFlags()

	flags.StringVar(
		&args.configPath,
		"config",
		"config/config.yaml",
		"Path to the YAML config file",
	)
	flags.BoolVar(
		&args.debug,
		"debug",
		false,
		"Enable debug logging",
	)

	Cmd.AddCommand(serveCmd, refreshCmd, reportCmd, connectionCmd)
}
