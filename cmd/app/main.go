package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/pagetree/internal"
	pkgconfig "github.com/starford/pagetree/pkg/config"
)

var version = "dev"

// loadConfig reads the optional config file and applies command-line overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")
	candidates := []string{configPath}
	if !cmd.IsSet("config") {
		candidates = append(candidates, internal.UserConfigFile())
	}

	cfg := internal.NewDefaultConfig()
	found := false
	for _, path := range candidates {
		ok, err := pkgconfig.LoadOptional(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if ok {
			found = true
			break
		}
	}
	if !found && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if cmd.IsSet("input") {
		cfg.Export.Input = cmd.String("input")
	}
	if cmd.IsSet("output") {
		cfg.Export.OutputDir = cmd.String("output")
	}
	if cmd.IsSet("base-url") {
		cfg.Export.BaseURL = cmd.String("base-url")
	}
	if cmd.IsSet("workers") {
		cfg.Export.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("on-duplicate") {
		cfg.Export.OnDuplicate = cmd.String("on-duplicate")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithDryRun(cmd.Bool("dry-run")),
		internal.WithForce(cmd.Bool("force")),
	}
	if err := internal.RunExport(ctx, opts...); err != nil {
		return fmt.Errorf("export error: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunServe(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

// exportFlags override the export section of the config file.
func exportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "Path to the page tree export (JSON or YAML)",
			Sources: cli.EnvVars("PAGETREE_INPUT"),
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Directory the per-page CSV files are written to",
			Sources: cli.EnvVars("PAGETREE_OUTPUT_DIR"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL prepended to each page's web locator",
			Sources: cli.EnvVars("PAGETREE_BASE_URL"),
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Number of top-level pages exported concurrently",
		},
		&cli.StringFlag{
			Name:  "on-duplicate",
			Usage: "What to do when two top-level titles map to the same file: error, merge or rename",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "pagetree",
		Usage:   "Split a hierarchical page export into one CSV file per top-level page",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "export",
				Usage:  "Export the input document once and exit",
				Action: runExport,
				Flags: append(exportFlags(),
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Partition the tree and report counts without writing files",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Export even if the input is unchanged since the last indexed run",
					},
				),
			},
			{
				Name:   "serve",
				Usage:  "Export, watch the input for changes and serve the export index over HTTP",
				Action: runServe,
				Flags:  exportFlags(),
			},
			{
				Name:   "mcp",
				Usage:  "Serve export tools over the Model Context Protocol on stdio",
				Action: runMCP,
				Flags:  exportFlags(),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
