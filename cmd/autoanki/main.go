package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.design/x/hotkey/mainthread"

	"github.com/hvngan/autoanki/internal/anki"
	"github.com/hvngan/autoanki/internal/batch"
	"github.com/hvngan/autoanki/internal/capture"
	"github.com/hvngan/autoanki/internal/cli"
	"github.com/hvngan/autoanki/internal/config"
	"github.com/hvngan/autoanki/internal/enrich"
	"github.com/hvngan/autoanki/internal/hotkey"
	"github.com/hvngan/autoanki/internal/image"
	"github.com/hvngan/autoanki/internal/models"
)

func main() {
	// Hotkey registration must happen on the process main thread on some
	// platforms; mainthread.Init takes care of that.
	mainthread.Init(run)
}

func run() {
	flags := cli.NewFlags()
	rootCmd := cli.CreateRootCommand(flags)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCommand(flags)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCommand(flags *cli.Flags) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(flags.CfgFile)
	if err != nil {
		return err
	}

	if flags.ListDecks {
		return models.NewLister(anki.NewClient(cfg.AnkiURL)).List(os.Stdout)
	}

	pipeline, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	if flags.BatchFile != "" {
		_, err := batch.Run(pipeline, flags.BatchFile, logger)
		return err
	}
	if flags.Once != "" {
		return runOnce(pipeline, flags.Once)
	}
	return listen(pipeline, cfg, logger)
}

func newLogger() (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg.Build()
}

func buildPipeline(cfg *config.Config, logger *zap.Logger) (*capture.Pipeline, error) {
	store := anki.NewClient(cfg.AnkiURL)
	if version, err := store.Version(); err != nil {
		// Not fatal: Anki may simply not be running yet.
		logger.Warn("AnkiConnect not reachable", zap.String("url", cfg.AnkiURL), zap.Error(err))
	} else {
		logger.Info("connected to AnkiConnect", zap.Int("api_version", version))
	}

	template, err := enrich.LoadTemplate(cfg.PromptFile)
	if err != nil {
		return nil, err
	}

	var generator enrich.Generator
	switch cfg.AIProvider {
	case "openai":
		generator = enrich.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		generator = enrich.NewGemini(cfg.GeminiURL, cfg.GeminiAPIKey)
	}

	resolver := image.NewResolver(image.NewSearcher(cfg.SearchURL), cfg.ImageRetryLimit, logger)

	targets := map[capture.Workflow]capture.Target{
		capture.Vocabulary: {
			Deck:           cfg.Vocabulary.Deck,
			Model:          cfg.Vocabulary.Model,
			Tags:           []string{"cambridge"},
			AllowDuplicate: cfg.AllowDuplicate,
		},
		capture.Task1: {
			Deck:  cfg.Task1.Deck,
			Model: cfg.Task1.Model,
			Tags:  []string{"ielts", "task1"},
		},
		capture.Task2: {
			Deck:  cfg.Task2.Deck,
			Model: cfg.Task2.Model,
			Tags:  []string{"ielts", "task2"},
		},
	}

	return capture.New(capture.Options{
		Store:       store,
		Words:       enrich.NewDictionary(cfg.DictionaryURL),
		Sentences:   enrich.NewGenerative(template, generator),
		Images:      resolver,
		Clipboard:   hotkey.ReadClipboard,
		Targets:     targets,
		SettleDelay: cfg.ClipboardDelay,
		Logger:      logger,
	}), nil
}

func runOnce(pipeline *capture.Pipeline, workflow string) error {
	wf := capture.Workflow(workflow)
	switch wf {
	case capture.Vocabulary, capture.Task1, capture.Task2:
	default:
		return fmt.Errorf("unknown workflow %q (want vocabulary, task1 or task2)", workflow)
	}

	if outcome := pipeline.Trigger(wf); outcome == capture.Failed {
		return fmt.Errorf("capture failed")
	}
	return nil
}

func listen(pipeline *capture.Pipeline, cfg *config.Config, logger *zap.Logger) error {
	listener := hotkey.NewListener(logger)
	defer listener.Close()

	bindings := []struct {
		spec     string
		workflow capture.Workflow
	}{
		{cfg.Vocabulary.Hotkey, capture.Vocabulary},
		{cfg.Task1.Hotkey, capture.Task1},
		{cfg.Task2.Hotkey, capture.Task2},
	}
	for _, b := range bindings {
		workflow := b.workflow
		if err := listener.Bind(b.spec, func() { pipeline.Trigger(workflow) }); err != nil {
			return err
		}
	}

	logger.Info("listening",
		zap.String("vocabulary_hotkey", cfg.Vocabulary.Hotkey),
		zap.String("task1_hotkey", cfg.Task1.Hotkey),
		zap.String("task2_hotkey", cfg.Task2.Hotkey))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	return nil
}
