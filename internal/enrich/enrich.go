// Package enrich produces card content for captured text, either by scraping
// a dictionary page for a single word or by asking a generative-language API
// about a sentence with a marked target span.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Result maps field names to enriched text content.
type Result map[string]string

// Dictionary result fields.
const (
	FieldPhonetic   = "phonetic"
	FieldDefinition = "definition"
	FieldExamples   = "examples"
	FieldSynonyms   = "synonyms"
)

// Generative result fields, matching the labels the prompt asks for.
const (
	FieldSentence = "Sentence"
	FieldCloze    = "Cloze"
	FieldAnswer   = "Answer"
	FieldHint     = "Hint"
	FieldImage    = "Image"
)

// ErrNoResult is a soft skip: the source had nothing usable for this input.
// The pipeline logs it and ends the capture without adding a card.
var ErrNoResult = errors.New("no result")

// ErrRateLimited is a soft skip: the API refused the request with HTTP 429.
// There is no retry; the user can simply trigger again later.
var ErrRateLimited = errors.New("rate limited")

// Generator produces free text from a prompt. Implemented by the Gemini and
// OpenAI backends.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// mandatoryLabels must all be present in a generative response. A reply
// missing any of them is a format error, not something to paper over with
// defaults: a malformed card is worse than no card.
var mandatoryLabels = []string{FieldSentence, FieldCloze, FieldAnswer, FieldHint}

var labelPatterns = compileLabelPatterns()

func compileLabelPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	for _, label := range append(append([]string{}, mandatoryLabels...), FieldImage) {
		// Case-sensitive label followed by a colon, capturing up to a blank
		// line or the end of the text. Multi-line values are allowed.
		patterns[label] = regexp.MustCompile(`(?s)` + label + `:\s*(.+?)(?:\n\n|$)`)
	}
	return patterns
}

// ParseLabeled extracts the labeled sections from a generative reply. All
// mandatory labels must be present; Image is optional.
func ParseLabeled(text string) (Result, error) {
	result := make(Result)
	for label, pattern := range labelPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			result[label] = strings.TrimSpace(m[1])
		}
	}

	for _, label := range mandatoryLabels {
		if result[label] == "" {
			return nil, fmt.Errorf("missing %q section in model output: %s", label, truncate(text, 300))
		}
	}

	return result, nil
}

// Generative enriches a sentence capture by rendering the prompt template
// and parsing the backend's labeled reply.
type Generative struct {
	template  *Template
	generator Generator
}

// NewGenerative creates a generative enricher over the given backend.
func NewGenerative(template *Template, generator Generator) *Generative {
	return &Generative{
		template:  template,
		generator: generator,
	}
}

// Enrich runs one generative completion for the captured text. Rate limiting
// and empty replies surface as soft skips, malformed replies as errors.
func (g *Generative) Enrich(ctx context.Context, text string) (Result, error) {
	reply, err := g.generator.Generate(ctx, g.template.Render(text))
	if err != nil {
		return nil, err
	}
	return ParseLabeled(reply)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
