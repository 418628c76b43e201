// Package batch captures a list of words from a file, one vocabulary card
// each, for seeding a deck without copying every word by hand.
package batch

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hvngan/autoanki/internal/capture"
)

// ReadWordFile reads words from a file, one per line. Blank lines and lines
// starting with # are skipped.
func ReadWordFile(filename string) ([]string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var words []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, nil
}

// Summary counts the terminal outcomes of a batch run.
type Summary struct {
	Added   int
	Skipped int
	Failed  int
}

// Run captures every word in the file through the vocabulary workflow.
// Individual failures are counted, not propagated; one bad word should not
// stop the rest of the list.
func Run(pipeline *capture.Pipeline, filename string, logger *zap.Logger) (Summary, error) {
	words, err := ReadWordFile(filename)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for i, word := range words {
		logger.Info("processing batch word",
			zap.Int("index", i+1), zap.Int("total", len(words)), zap.String("word", word))

		switch pipeline.Capture(capture.Vocabulary, word) {
		case capture.Added:
			summary.Added++
		case capture.Failed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	logger.Info("batch finished",
		zap.Int("total", len(words)),
		zap.Int("added", summary.Added),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))

	return summary, nil
}
