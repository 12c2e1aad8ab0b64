package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	buildApp         string
	buildIncremental bool
	buildNoDump      bool
)

// BuildCmd trains models from application resources and persists them.
var BuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Train models from application resources and persist them",
	Long: `Train every model of the application's processor tree from its
training files and persist the artifacts to the configured store.

A plain build trains everything in memory and then dumps the canonical
artifacts. An incremental build persists each model right after fitting
under a shared timestamp token, reusing unchanged models from the previous
generation.

Example:
  delphi build --app ./home_assistant
  delphi build --app ./home_assistant --incremental`,
	RunE: runBuild,
}

func init() {
	BuildCmd.Flags().StringVar(&buildApp, "app", "", "Application resource directory (overrides app.root)")
	BuildCmd.Flags().BoolVar(&buildIncremental, "incremental", false, "Persist models incrementally under a shared token")
	BuildCmd.Flags().BoolVar(&buildNoDump, "no-dump", false, "Train without persisting artifacts")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engine, err := newEngine(cfg, buildApp, nil, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := cmd.Context()
	start := time.Now()
	if err := engine.Build(ctx, buildIncremental); err != nil {
		return fmt.Errorf("building models: %w", err)
	}
	fmt.Printf("Built %d domain(s) in %v\n",
		len(engine.Tree().DomainNames()), time.Since(start).Round(time.Millisecond))

	if buildNoDump {
		return nil
	}
	if !buildIncremental {
		if err := engine.Dump(ctx); err != nil {
			return fmt.Errorf("persisting models: %w", err)
		}
	}
	if m := engine.Manifest(); m != nil && m.Token != "" {
		fmt.Printf("Persisted artifacts under token %s\n", m.Token)
	} else {
		fmt.Println("Persisted artifacts")
	}
	return nil
}
