package cli

import (
	"github.com/spf13/cobra"

	"github.com/hvngan/autoanki/internal"
	"github.com/hvngan/autoanki/internal/config"
)

// CreateRootCommand creates and configures the root cobra command.
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autoanki",
		Short: "Clipboard-to-Anki capture assistant",
		Long: `autoanki listens for global hotkeys and turns the clipboard into
Anki cards through a locally running AnkiConnect.

Copy a word and press the vocabulary hotkey to capture a dictionary card,
or copy a sentence with the target phrase in angle brackets (for example
"I like the <weather> today") and press a task hotkey to capture an
AI-enriched cloze card.`,
		Args:    cobra.NoArgs,
		Version: internal.Version,
	}

	setupFlags(rootCmd, flags)

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", config.DefaultFile,
		"config file (flat KEY=value format)")
	cmd.Flags().StringVar(&flags.Once, "once", "",
		"run one capture for the given workflow (vocabulary, task1, task2) and exit")
	cmd.Flags().StringVar(&flags.BatchFile, "batch", "",
		"capture a vocabulary card for every word in the file (one per line)")
	cmd.Flags().BoolVar(&flags.ListDecks, "list-decks", false,
		"list decks and note models in the running Anki collection")
}
