// Command comet runs SaaS API extractions: it instantiates a source
// and destination connector from a YAML run configuration and drives
// the extraction pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/internal/pipeline"
	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/registry"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/mask"

	// Register connectors.
	_ "github.com/ajitpratap0/comet/pkg/connector/destinations/jsonl"
	_ "github.com/ajitpratap0/comet/pkg/connector/sources/customerio"
	_ "github.com/ajitpratap0/comet/pkg/connector/sources/googlesheets"
	_ "github.com/ajitpratap0/comet/pkg/connector/sources/plusvibe"
	_ "github.com/ajitpratap0/comet/pkg/connector/sources/snapchatads"
)

var version = "dev"

// RunConfig is the YAML shape of one extraction run.
type RunConfig struct {
	Source      config.BaseConfig `yaml:"source"`
	Destination config.BaseConfig `yaml:"destination"`
	Resources   []string          `yaml:"resources"`
	// Mask maps record fields to masking strategies (redact, hash,
	// partial, null) applied before records reach the destination.
	Mask map[string]string `yaml:"mask"`
}

func main() {
	// Secrets referenced as ${VAR} in config files come from the
	// environment; a local .env is honored when present.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "comet",
		Short: "Comet extracts data from SaaS REST APIs",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return logger.Init(logger.Config{Level: logLevel, Encoding: "json"})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(versionCmd(), listCmd(), extractCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the comet version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("comet %s\n", version)
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered connectors",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("sources:      %s\n", strings.Join(registry.SourceNames(), ", "))
			cmd.Printf("destinations: %s\n", strings.Join(registry.DestinationNames(), ", "))
		},
	}
}

func extractCmd() *cobra.Command {
	var configPath string
	var resources []string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run an extraction from a YAML run configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			var runCfg RunConfig
			if err := config.Load(configPath, &runCfg); err != nil {
				return err
			}
			if len(resources) > 0 {
				runCfg.Resources = resources
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runExtraction(ctx, &runCfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "comet.yaml", "run configuration file")
	cmd.Flags().StringSliceVarP(&resources, "resources", "r", nil, "resources to extract (default: all)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runExtraction(ctx context.Context, runCfg *RunConfig) error {
	log := logger.Get()

	source, err := registry.NewSource(runCfg.Source.Type, &runCfg.Source)
	if err != nil {
		return err
	}
	if err := source.Initialize(ctx, &runCfg.Source); err != nil {
		return err
	}
	defer func() { _ = source.Close(ctx) }()

	destination, err := registry.NewDestination(runCfg.Destination.Type, &runCfg.Destination)
	if err != nil {
		return err
	}
	if err := destination.Initialize(ctx, &runCfg.Destination); err != nil {
		return err
	}
	defer func() { _ = destination.Close(ctx) }()

	if err := source.Health(ctx); err != nil {
		return err
	}

	runner := pipeline.NewRunner(source, destination)
	if len(runCfg.Mask) > 0 {
		engine, err := mask.NewEngine(runCfg.Mask)
		if err != nil {
			return err
		}
		runner = runner.WithMask(engine)
	}

	result, err := runner.Run(ctx, runCfg.Resources)
	if result != nil {
		log.Info("run finished",
			zap.Int("resources", result.Resources),
			zap.Strings("failed", result.Failed),
			zap.Duration("elapsed", result.Elapsed))
	}
	return err
}
