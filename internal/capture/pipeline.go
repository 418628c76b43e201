// Package capture orchestrates one clipboard capture: validate, dedup,
// enrich, resolve an image, persist the card. At most one capture runs at a
// time; triggers arriving while busy are dropped.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hvngan/autoanki/internal/anki"
	"github.com/hvngan/autoanki/internal/cloze"
	"github.com/hvngan/autoanki/internal/enrich"
	"github.com/hvngan/autoanki/internal/image"
)

// Workflow selects what a trigger does with the clipboard text.
type Workflow string

const (
	// Vocabulary captures a single word and enriches it from the dictionary.
	Vocabulary Workflow = "vocabulary"
	// Task1 and Task2 capture a sentence with a <target> span and enrich it
	// via the generative backend. They differ only in destination deck,
	// note model and tags.
	Task1 Workflow = "task1"
	Task2 Workflow = "task2"
)

// Outcome is the terminal state of one capture run.
type Outcome int

const (
	// Added means a card was submitted to the store.
	Added Outcome = iota
	// Skipped means the run ended early without a card and without error:
	// invalid input, duplicate word, dictionary miss or rate limiting.
	Skipped
	// Failed means a fatal error ended the run.
	Failed
	// Dropped means the trigger arrived while another capture was running.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

// maxWordTokens bounds what the vocabulary workflow accepts as a look-up
// phrase. Anything longer is a sentence pasted by accident.
const maxWordTokens = 5

// Store persists cards and media. Implemented by anki.Client.
type Store interface {
	Exists(word string) (bool, error)
	AddCard(card anki.Card) error
	StoreMedia(filename string, data []byte) error
}

// WordEnricher looks up a single word. Implemented by enrich.Dictionary.
type WordEnricher interface {
	Lookup(ctx context.Context, word string) (enrich.Result, error)
}

// SentenceEnricher enriches a sentence capture. Implemented by
// enrich.Generative.
type SentenceEnricher interface {
	Enrich(ctx context.Context, text string) (enrich.Result, error)
}

// ImageResolver fetches an illustrative image, failing softly with nil.
// Implemented by image.Resolver.
type ImageResolver interface {
	Resolve(ctx context.Context, query string) *image.Resolved
}

// Target is the deck/model/tag destination of one workflow.
type Target struct {
	Deck           string
	Model          string
	Tags           []string
	AllowDuplicate bool
}

// Options wires a Pipeline together.
type Options struct {
	Store     Store
	Words     WordEnricher
	Sentences SentenceEnricher
	Images    ImageResolver

	// Clipboard reads the current clipboard text.
	Clipboard func() (string, error)

	// Targets maps each workflow to its destination.
	Targets map[Workflow]Target

	// SettleDelay is how long to wait after the trigger before reading the
	// clipboard, giving the user's copy action time to land.
	SettleDelay time.Duration

	Logger *zap.Logger
}

// Pipeline runs captures. One instance serves all workflows.
type Pipeline struct {
	opts Options

	// slot is a single-permit admission guard. Triggers come from one human
	// input stream, so non-blocking acquisition is all the exclusion needed.
	slot chan struct{}
}

// New creates a capture pipeline.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	slot := make(chan struct{}, 1)
	slot <- struct{}{}
	return &Pipeline{opts: opts, slot: slot}
}

// Trigger runs one capture for the given workflow. It never panics or
// returns an error: fatal conditions are logged and reported as Failed so
// the listening process stays alive for the next trigger.
func (p *Pipeline) Trigger(workflow Workflow) Outcome {
	select {
	case <-p.slot:
	default:
		p.opts.Logger.Info("busy, dropping trigger", zap.String("workflow", string(workflow)))
		return Dropped
	}
	defer func() { p.slot <- struct{}{} }()

	log := p.opts.Logger.With(zap.String("workflow", string(workflow)))

	// Let the clipboard settle after the user's copy action.
	time.Sleep(p.opts.SettleDelay)

	text, err := p.opts.Clipboard()
	if err != nil {
		log.Warn("failed to read clipboard", zap.Error(err))
		return Skipped
	}

	return p.Capture(workflow, text)
}

// Capture runs one capture for text that is already in hand, bypassing the
// admission guard and the clipboard. Used by Trigger and by batch capture.
func (p *Pipeline) Capture(workflow Workflow, text string) Outcome {
	log := p.opts.Logger.With(zap.String("workflow", string(workflow)))

	outcome, err := p.run(workflow, strings.TrimSpace(text))
	if err != nil {
		log.Error("capture failed", zap.Error(err))
		return Failed
	}
	log.Info("capture finished", zap.String("outcome", outcome.String()))
	return outcome
}

func (p *Pipeline) run(workflow Workflow, text string) (Outcome, error) {
	target, ok := p.opts.Targets[workflow]
	if !ok {
		return Failed, fmt.Errorf("no target configured for workflow %q", workflow)
	}

	ctx := context.Background()
	if workflow == Vocabulary {
		return p.captureWord(ctx, target, text)
	}
	return p.captureSentence(ctx, target, text)
}

// captureWord is the vocabulary workflow: clipboard holds a word or a short
// phrase to look up in the dictionary.
func (p *Pipeline) captureWord(ctx context.Context, target Target, text string) (Outcome, error) {
	word := strings.ToLower(text)
	if word == "" || len(strings.Fields(word)) > maxWordTokens {
		p.opts.Logger.Info("clipboard is not a word or short phrase", zap.String("text", word))
		return Skipped, nil
	}

	exists, err := p.opts.Store.Exists(word)
	if err != nil {
		return Failed, err
	}
	if exists {
		p.opts.Logger.Info("word already captured", zap.String("word", word))
		return Skipped, nil
	}

	result, err := p.opts.Words.Lookup(ctx, word)
	if err != nil {
		if errors.Is(err, enrich.ErrNoResult) {
			p.opts.Logger.Info("no dictionary entry", zap.String("word", word))
			return Skipped, nil
		}
		return Failed, err
	}

	imageField, err := p.attachImage(ctx, word)
	if err != nil {
		return Failed, err
	}

	card := anki.Card{
		Deck:  target.Deck,
		Model: target.Model,
		Fields: map[string]string{
			"Word":              word,
			"Cloze":             cloze.Format(word),
			"Phonetic symbol":   result[enrich.FieldPhonetic],
			"Audio":             "",
			"Definition":        result[enrich.FieldDefinition],
			"Extra information": result[enrich.FieldExamples],
			"Synonyms":          result[enrich.FieldSynonyms],
			"Image":             imageField,
		},
		Tags:           target.Tags,
		AllowDuplicate: target.AllowDuplicate,
	}
	if err := p.opts.Store.AddCard(card); err != nil {
		return Failed, err
	}

	p.opts.Logger.Info("added vocabulary card", zap.String("word", word))
	return Added, nil
}

// captureSentence is the generative workflow: clipboard holds a sentence
// with the target span bracketed in < and >.
func (p *Pipeline) captureSentence(ctx context.Context, target Target, text string) (Outcome, error) {
	if !hasTargetSpan(text) {
		p.opts.Logger.Info("clipboard must contain a <target phrase>")
		return Skipped, nil
	}

	result, err := p.opts.Sentences.Enrich(ctx, text)
	if err != nil {
		switch {
		case errors.Is(err, enrich.ErrRateLimited):
			p.opts.Logger.Info("generative API rate limited, skipping")
			return Skipped, nil
		case errors.Is(err, enrich.ErrNoResult):
			p.opts.Logger.Info("generative API returned nothing, skipping")
			return Skipped, nil
		}
		return Failed, err
	}

	// Prefer the model's explicit image hint; fall back to the answer.
	query := result[enrich.FieldImage]
	if query == "" {
		query = result[enrich.FieldAnswer]
	}
	imageField, err := p.attachImage(ctx, query)
	if err != nil {
		return Failed, err
	}

	card := anki.Card{
		Deck:  target.Deck,
		Model: target.Model,
		Fields: map[string]string{
			"Sentence":   result[enrich.FieldSentence],
			"Cloze":      result[enrich.FieldCloze],
			"Answer":     result[enrich.FieldAnswer],
			"Definition": result[enrich.FieldHint],
			"Image":      imageField,
		},
		Tags:           target.Tags,
		AllowDuplicate: target.AllowDuplicate,
	}
	if err := p.opts.Store.AddCard(card); err != nil {
		return Failed, err
	}

	p.opts.Logger.Info("added sentence card", zap.String("answer", result[enrich.FieldAnswer]))
	return Added, nil
}

// attachImage resolves an image for the query and stores it in the media
// collection. A failed resolution yields an empty field, never an error; a
// failed media upload is fatal like any other store error.
func (p *Pipeline) attachImage(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "", nil
	}
	resolved := p.opts.Images.Resolve(ctx, query)
	if resolved == nil {
		return "", nil
	}
	if err := p.opts.Store.StoreMedia(resolved.Filename, resolved.Data); err != nil {
		return "", err
	}
	return fmt.Sprintf(`<img src="%s">`, resolved.Filename), nil
}

func hasTargetSpan(text string) bool {
	start := strings.Index(text, "<")
	end := strings.Index(text, ">")
	return start >= 0 && end > start+1
}
