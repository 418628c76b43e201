// Package config loads the flat KEY=value configuration file the tool has
// always used, via viper's properties support, with AUTOANKI_* environment
// overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/hvngan/autoanki/internal/anki"
	"github.com/hvngan/autoanki/internal/enrich"
	"github.com/hvngan/autoanki/internal/image"
)

// DefaultFile is the config file looked up when --config is not given.
const DefaultFile = "./auto_anki_config.txt"

// Workflow describes one hotkey-bound capture target.
type Workflow struct {
	Deck   string
	Model  string
	Hotkey string
}

// Config holds everything the listener needs at startup.
type Config struct {
	AnkiURL        string
	AllowDuplicate bool

	Vocabulary Workflow
	Task1      Workflow
	Task2      Workflow

	DictionaryURL string

	AIProvider   string // "gemini" or "openai"
	GeminiURL    string
	GeminiAPIKey string
	OpenAIAPIKey string
	OpenAIModel  string
	PromptFile   string

	SearchURL       string
	ImageRetryLimit int
	ClipboardDelay  time.Duration
}

// Load reads and validates the configuration file. A missing file or a
// missing API key for the selected generative provider is startup-fatal;
// these are operator mistakes, not per-run conditions.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("properties")

	setDefaults(v)

	v.SetEnvPrefix("AUTOANKI")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{
		AnkiURL:        v.GetString("ANKI_URL"),
		AllowDuplicate: v.GetBool("ALLOW_DUPLICATE"),
		Vocabulary: Workflow{
			Deck:   v.GetString("DECK"),
			Model:  v.GetString("MODEL"),
			Hotkey: v.GetString("HOTKEY"),
		},
		Task1: Workflow{
			Deck:   v.GetString("DECK_TASK1"),
			Model:  v.GetString("MODEL_TASK1"),
			Hotkey: v.GetString("HOTKEY_TASK1"),
		},
		Task2: Workflow{
			Deck:   v.GetString("DECK_TASK2"),
			Model:  v.GetString("MODEL_TASK2"),
			Hotkey: v.GetString("HOTKEY_TASK2"),
		},
		DictionaryURL:   v.GetString("DICTIONARY_URL"),
		AIProvider:      v.GetString("AI_PROVIDER"),
		GeminiURL:       v.GetString("GEMINI_URL"),
		GeminiAPIKey:    v.GetString("GEMINI_API_KEY"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		OpenAIModel:     v.GetString("OPENAI_MODEL"),
		PromptFile:      v.GetString("PROMPT_FILE"),
		SearchURL:       v.GetString("SEARCH_URL"),
		ImageRetryLimit: v.GetInt("IMAGE_RETRY_LIMIT"),
		ClipboardDelay:  time.Duration(v.GetInt("CLIPBOARD_DELAY_MS")) * time.Millisecond,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ANKI_URL", anki.DefaultURL)
	v.SetDefault("ALLOW_DUPLICATE", true)

	v.SetDefault("DECK", "Default")
	v.SetDefault("MODEL", "Basic")
	v.SetDefault("HOTKEY", "ctrl+alt+a")

	v.SetDefault("DECK_TASK1", "Review Task 1")
	v.SetDefault("MODEL_TASK1", "IELTS Writing Revise")
	v.SetDefault("HOTKEY_TASK1", "ctrl+alt+r")

	v.SetDefault("DECK_TASK2", "Review Task 2")
	v.SetDefault("MODEL_TASK2", "IELTS Writing Revise")
	v.SetDefault("HOTKEY_TASK2", "ctrl+alt+t")

	v.SetDefault("DICTIONARY_URL", enrich.DefaultDictionaryURL)

	v.SetDefault("AI_PROVIDER", "gemini")
	v.SetDefault("GEMINI_URL", enrich.DefaultGeminiURL)
	v.SetDefault("OPENAI_MODEL", "")
	v.SetDefault("PROMPT_FILE", "./prompt.txt")

	v.SetDefault("SEARCH_URL", image.DefaultSearchURL)
	v.SetDefault("IMAGE_RETRY_LIMIT", image.DefaultRetryLimit)
	v.SetDefault("CLIPBOARD_DELAY_MS", 1500)
}

func (c *Config) validate() error {
	switch c.AIProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY not set in config")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY not set in config")
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q (want gemini or openai)", c.AIProvider)
	}
	return nil
}
