package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/wehubfusion/Delphi/pkg/nlp"
)

var (
	processApp         string
	processTranscripts []string
	processAllow       []string
	processLanguage    string
	processToken       string
	processBuild       bool
	processVerbose     bool
)

// ProcessCmd runs one utterance through the engine.
var ProcessCmd = &cobra.Command{
	Use:   "process [text...]",
	Short: "Run one utterance through the engine and print the result",
	Long: `Process an utterance through the full pipeline and print the
selected domain and intent, recognized entities, and resolved values as
JSON.

By default previously persisted artifacts are loaded from the store; with
--build, models are trained fresh from the training files first. Repeated
--transcript flags supply speech-recognizer alternatives for n-best entity
alignment.

Example:
  delphi process --app ./home_assistant "turn on the kitchen lights"
  delphi process --app ./home_assistant --allow smart_home.* "lights on"
  delphi process --app ./home_assistant \
    --transcript "book 2 tickets" --transcript "book to tickets" \
    "book two tickets"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	ProcessCmd.Flags().StringVar(&processApp, "app", "", "Application resource directory (overrides app.root)")
	ProcessCmd.Flags().StringArrayVar(&processTranscripts, "transcript", nil, "N-best transcript alternative (repeatable)")
	ProcessCmd.Flags().StringArrayVar(&processAllow, "allow", nil, "Allowed label path, \"domain.intent\" or \"domain.*\" (repeatable)")
	ProcessCmd.Flags().StringVar(&processLanguage, "language", "", "BCP-47 language tag overriding the configured default")
	ProcessCmd.Flags().StringVar(&processToken, "token", "", "Incremental generation token to load")
	ProcessCmd.Flags().BoolVar(&processBuild, "build", false, "Train models instead of loading persisted artifacts")
	ProcessCmd.Flags().BoolVar(&processVerbose, "verbose", false, "Include per-tier confidence distributions")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engine, err := newEngine(cfg, processApp, nil, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := cmd.Context()
	if processBuild {
		if err := engine.Build(ctx, false); err != nil {
			return fmt.Errorf("building models: %w", err)
		}
	} else {
		if err := engine.Load(ctx, processToken); err != nil {
			return fmt.Errorf("loading models: %w", err)
		}
	}

	req := nlp.ProcessRequest{
		Text:           strings.Join(args, " "),
		Transcripts:    processTranscripts,
		AllowedIntents: processAllow,
		Verbose:        processVerbose,
	}
	if processLanguage != "" {
		tag, err := language.Parse(processLanguage)
		if err != nil {
			return fmt.Errorf("parsing --language %q: %w", processLanguage, err)
		}
		req.Language = tag
	}

	result, err := engine.Process(ctx, req)
	if err != nil {
		return fmt.Errorf("processing: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
