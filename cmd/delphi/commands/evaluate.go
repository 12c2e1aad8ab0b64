package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var (
	evaluateApp   string
	evaluateLoad  bool
	evaluateToken string
)

// EvaluateCmd measures model accuracy against labeled test files.
var EvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run models against labeled test files and report accuracy",
	Long: `Evaluate every model with two or more labels against the matching
test files and print accuracy per artifact.

By default models are trained fresh from the training files. With --load,
previously persisted artifacts are restored from the store instead.

Example:
  delphi evaluate --app ./home_assistant
  delphi evaluate --app ./home_assistant --load`,
	RunE: runEvaluate,
}

func init() {
	EvaluateCmd.Flags().StringVar(&evaluateApp, "app", "", "Application resource directory (overrides app.root)")
	EvaluateCmd.Flags().BoolVar(&evaluateLoad, "load", false, "Load persisted artifacts instead of training")
	EvaluateCmd.Flags().StringVar(&evaluateToken, "token", "", "Incremental generation token to load (implies --load)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engine, err := newEngine(cfg, evaluateApp, nil, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := cmd.Context()
	if evaluateLoad || evaluateToken != "" {
		if err := engine.Load(ctx, evaluateToken); err != nil {
			return fmt.Errorf("loading models: %w", err)
		}
	} else {
		if err := engine.Build(ctx, false); err != nil {
			return fmt.Errorf("building models: %w", err)
		}
	}

	report, err := engine.Evaluate()
	if err != nil {
		return fmt.Errorf("evaluating models: %w", err)
	}
	if len(report) == 0 {
		fmt.Println("No models were evaluated (no test files found)")
		return nil
	}

	names := make([]string, 0, len(report))
	for name := range report {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-60s %s\n", name, report[name])
	}
	return nil
}
