package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hvngan/autoanki/internal/anki"
	"github.com/hvngan/autoanki/internal/enrich"
	"github.com/hvngan/autoanki/internal/image"
)

type mockStore struct {
	mu          sync.Mutex
	exists      bool
	existsErr   error
	addErr      error
	existsCalls int
	added       []anki.Card
	media       map[string][]byte
}

func (m *mockStore) Exists(word string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	return m.exists, m.existsErr
}

func (m *mockStore) AddCard(card anki.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, card)
	return nil
}

func (m *mockStore) StoreMedia(filename string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.media == nil {
		m.media = make(map[string][]byte)
	}
	m.media[filename] = data
	return nil
}

type mockWords struct {
	result enrich.Result
	err    error
	calls  int
}

func (m *mockWords) Lookup(ctx context.Context, word string) (enrich.Result, error) {
	m.calls++
	return m.result, m.err
}

type mockSentences struct {
	result enrich.Result
	err    error
	calls  int
}

func (m *mockSentences) Enrich(ctx context.Context, text string) (enrich.Result, error) {
	m.calls++
	return m.result, m.err
}

type mockImages struct {
	resolved *image.Resolved
	calls    int
	queries  []string
}

func (m *mockImages) Resolve(ctx context.Context, query string) *image.Resolved {
	m.calls++
	m.queries = append(m.queries, query)
	return m.resolved
}

func testTargets() map[Workflow]Target {
	return map[Workflow]Target{
		Vocabulary: {Deck: "English", Model: "Basic", Tags: []string{"cambridge"}, AllowDuplicate: true},
		Task1:      {Deck: "Review Task 1", Model: "IELTS Writing Revise", Tags: []string{"ielts", "task1"}},
		Task2:      {Deck: "Review Task 2", Model: "IELTS Writing Revise", Tags: []string{"ielts", "task2"}},
	}
}

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.Targets == nil {
		opts.Targets = testTargets()
	}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	return New(opts)
}

func clipboardWith(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func TestVocabularyHappyPath(t *testing.T) {
	store := &mockStore{}
	words := &mockWords{result: enrich.Result{
		enrich.FieldPhonetic:   "ˈweð.ər",
		enrich.FieldDefinition: "the conditions in the air",
		enrich.FieldExamples:   "The weather turned cold.",
		enrich.FieldSynonyms:   "climate",
	}}
	images := &mockImages{resolved: &image.Resolved{
		Filename: "weather.jpg",
		Data:     []byte("bytes"),
	}}

	p := newTestPipeline(t, Options{
		Store:     store,
		Words:     words,
		Images:    images,
		Clipboard: clipboardWith("  Weather \n"),
	})

	assert.Equal(t, Added, p.Trigger(Vocabulary))

	require.Len(t, store.added, 1)
	card := store.added[0]
	assert.Equal(t, "English", card.Deck)
	assert.Equal(t, "Basic", card.Model)
	assert.Equal(t, []string{"cambridge"}, card.Tags)
	assert.True(t, card.AllowDuplicate)
	assert.Equal(t, "weather", card.Fields["Word"])
	assert.Equal(t, "w_____r", card.Fields["Cloze"])
	assert.Equal(t, "the conditions in the air", card.Fields["Definition"])
	assert.Equal(t, `<img src="weather.jpg">`, card.Fields["Image"])
	assert.Equal(t, []string{"weather"}, images.queries)
	assert.Equal(t, []byte("bytes"), store.media["weather.jpg"])
}

func TestVocabularyInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty clipboard", "   "},
		{"too many tokens", "this is a whole sentence pasted by accident"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			words := &mockWords{}
			p := newTestPipeline(t, Options{
				Store:     store,
				Words:     words,
				Images:    &mockImages{},
				Clipboard: clipboardWith(tt.text),
			})

			assert.Equal(t, Skipped, p.Trigger(Vocabulary))
			// Invalid input exits before any network work.
			assert.Zero(t, store.existsCalls)
			assert.Zero(t, words.calls)
		})
	}
}

func TestVocabularyFiveTokenPhraseAccepted(t *testing.T) {
	store := &mockStore{}
	words := &mockWords{result: enrich.Result{enrich.FieldDefinition: "def"}}
	p := newTestPipeline(t, Options{
		Store:     store,
		Words:     words,
		Images:    &mockImages{},
		Clipboard: clipboardWith("keep an eye on things"),
	})

	assert.Equal(t, Added, p.Trigger(Vocabulary))
}

func TestDedupGate(t *testing.T) {
	store := &mockStore{exists: true}
	words := &mockWords{}
	images := &mockImages{}
	p := newTestPipeline(t, Options{
		Store:     store,
		Words:     words,
		Images:    images,
		Clipboard: clipboardWith("weather"),
	})

	assert.Equal(t, Skipped, p.Trigger(Vocabulary))

	// An existing word must not trigger enrichment, image search or an add.
	assert.Equal(t, 1, store.existsCalls)
	assert.Zero(t, words.calls)
	assert.Zero(t, images.calls)
	assert.Empty(t, store.added)
}

func TestVocabularyDictionaryMiss(t *testing.T) {
	store := &mockStore{}
	p := newTestPipeline(t, Options{
		Store:     store,
		Words:     &mockWords{err: enrich.ErrNoResult},
		Images:    &mockImages{},
		Clipboard: clipboardWith("qwzx"),
	})

	assert.Equal(t, Skipped, p.Trigger(Vocabulary))
	assert.Empty(t, store.added)
}

func TestVocabularyImageFailureYieldsEmptyField(t *testing.T) {
	store := &mockStore{}
	p := newTestPipeline(t, Options{
		Store:     store,
		Words:     &mockWords{result: enrich.Result{enrich.FieldDefinition: "def"}},
		Images:    &mockImages{resolved: nil},
		Clipboard: clipboardWith("weather"),
	})

	assert.Equal(t, Added, p.Trigger(Vocabulary))
	require.Len(t, store.added, 1)
	assert.Empty(t, store.added[0].Fields["Image"])
}

func TestSentenceMissingTargetSpan(t *testing.T) {
	sentences := &mockSentences{}
	p := newTestPipeline(t, Options{
		Store:     &mockStore{},
		Sentences: sentences,
		Images:    &mockImages{},
		Clipboard: clipboardWith("I like the weather today"),
	})

	assert.Equal(t, Skipped, p.Trigger(Task1))
	assert.Zero(t, sentences.calls)
}

func TestSentenceRateLimitedSkips(t *testing.T) {
	store := &mockStore{}
	p := newTestPipeline(t, Options{
		Store:     store,
		Sentences: &mockSentences{err: enrich.ErrRateLimited},
		Images:    &mockImages{},
		Clipboard: clipboardWith("I like the <weather> today"),
	})

	assert.Equal(t, Skipped, p.Trigger(Task1))
	assert.Empty(t, store.added)
}

func TestSentenceFormatErrorIsFatal(t *testing.T) {
	store := &mockStore{}
	p := newTestPipeline(t, Options{
		Store:     store,
		Sentences: &mockSentences{err: fmt.Errorf("missing \"Answer\" section in model output")},
		Images:    &mockImages{},
		Clipboard: clipboardWith("I like the <weather> today"),
	})

	assert.Equal(t, Failed, p.Trigger(Task1))
	assert.Empty(t, store.added)
}

func TestSentenceImageQueryPrefersHintLabel(t *testing.T) {
	result := enrich.Result{
		enrich.FieldSentence: "s",
		enrich.FieldCloze:    "c",
		enrich.FieldAnswer:   "weather",
		enrich.FieldHint:     "h",
		enrich.FieldImage:    "cloudy sky",
	}
	images := &mockImages{}
	p := newTestPipeline(t, Options{
		Store:     &mockStore{},
		Sentences: &mockSentences{result: result},
		Images:    images,
		Clipboard: clipboardWith("I like the <weather> today"),
	})

	p.Trigger(Task1)
	assert.Equal(t, []string{"cloudy sky"}, images.queries)
}

func TestSentenceImageQueryFallsBackToAnswer(t *testing.T) {
	result := enrich.Result{
		enrich.FieldSentence: "s",
		enrich.FieldCloze:    "c",
		enrich.FieldAnswer:   "weather",
		enrich.FieldHint:     "h",
	}
	images := &mockImages{}
	p := newTestPipeline(t, Options{
		Store:     &mockStore{},
		Sentences: &mockSentences{result: result},
		Images:    images,
		Clipboard: clipboardWith("I like the <weather> today"),
	})

	p.Trigger(Task1)
	assert.Equal(t, []string{"weather"}, images.queries)
}

func TestTaskTargetsDiffer(t *testing.T) {
	result := enrich.Result{
		enrich.FieldSentence: "s",
		enrich.FieldCloze:    "c",
		enrich.FieldAnswer:   "a",
		enrich.FieldHint:     "h",
	}
	store := &mockStore{}
	p := newTestPipeline(t, Options{
		Store:     store,
		Sentences: &mockSentences{result: result},
		Images:    &mockImages{},
		Clipboard: clipboardWith("a <b> c"),
	})

	assert.Equal(t, Added, p.Trigger(Task1))
	assert.Equal(t, Added, p.Trigger(Task2))

	require.Len(t, store.added, 2)
	assert.Equal(t, "Review Task 1", store.added[0].Deck)
	assert.Equal(t, []string{"ielts", "task1"}, store.added[0].Tags)
	assert.Equal(t, "Review Task 2", store.added[1].Deck)
	assert.Equal(t, []string{"ielts", "task2"}, store.added[1].Tags)
}

func TestStoreErrorIsFatal(t *testing.T) {
	p := newTestPipeline(t, Options{
		Store:     &mockStore{addErr: fmt.Errorf("anki addNote error: deck missing")},
		Words:     &mockWords{result: enrich.Result{enrich.FieldDefinition: "def"}},
		Images:    &mockImages{},
		Clipboard: clipboardWith("weather"),
	})

	assert.Equal(t, Failed, p.Trigger(Vocabulary))
}

func TestBusyTriggerDropped(t *testing.T) {
	inside := make(chan struct{})
	release := make(chan struct{})

	store := &mockStore{}
	p := newTestPipeline(t, Options{
		Store:  store,
		Words:  &mockWords{err: enrich.ErrNoResult},
		Images: &mockImages{},
		Clipboard: func() (string, error) {
			close(inside)
			<-release
			return "weather", nil
		},
	})

	done := make(chan Outcome)
	go func() { done <- p.Trigger(Vocabulary) }()

	<-inside
	// Second trigger while the first is still reading the clipboard.
	assert.Equal(t, Dropped, p.Trigger(Task1))

	close(release)
	assert.Equal(t, Skipped, <-done)

	// Only the first run did any work.
	assert.Equal(t, 1, store.existsCalls)
}

// TestEndToEndSentenceCapture exercises the full path with real components:
// Gemini, image search, image download and AnkiConnect all stubbed at the
// HTTP layer. The first image candidate serves HTML and must be rejected.
func TestEndToEndSentenceCapture(t *testing.T) {
	aiReply := "Sentence: I like the weather today.\n\n" +
		"Cloze: I like the w_____r today.\n\n" +
		"Answer: weather\n\n" +
		"Hint: the state of the atmosphere"

	aiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply, _ := json.Marshal(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": aiReply}},
				},
			}},
		})
		w.Write(reply)
	}))
	defer aiSrv.Close()

	mux := http.NewServeMux()
	var imgSrv *httptest.Server
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a class="iusc" m='{"murl":"%s/broken"}'></a>`, imgSrv.URL)
		fmt.Fprintf(w, `<a class="iusc" m='{"murl":"%s/good.jpg"}'></a>`, imgSrv.URL)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not an image</html>"))
	})
	mux.HandleFunc("/good.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg payload"))
	})
	imgSrv = httptest.NewServer(mux)
	defer imgSrv.Close()

	type ankiCall struct {
		Action string          `json:"action"`
		Params json.RawMessage `json:"params"`
	}
	var ankiCalls []ankiCall
	ankiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call ankiCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		ankiCalls = append(ankiCalls, call)
		w.Write([]byte(`{"result": null, "error": null}`))
	}))
	defer ankiSrv.Close()

	promptPath := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("Make a card: {{INPUT}}"), 0644))
	tmpl, err := enrich.LoadTemplate(promptPath)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	p := newTestPipeline(t, Options{
		Store:     anki.NewClient(ankiSrv.URL),
		Sentences: enrich.NewGenerative(tmpl, enrich.NewGemini(aiSrv.URL, "key")),
		Images:    image.NewResolver(image.NewSearcher(imgSrv.URL+"/search"), 10, logger),
		Clipboard: clipboardWith("I like the <weather> today"),
		Logger:    logger,
	})

	assert.Equal(t, Added, p.Trigger(Task1))

	require.Len(t, ankiCalls, 2)
	assert.Equal(t, "storeMediaFile", ankiCalls[0].Action)

	var media struct {
		Filename string `json:"filename"`
		Data     string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ankiCalls[0].Params, &media))
	assert.Equal(t, "weather.jpg", media.Filename)
	decoded, err := base64.StdEncoding.DecodeString(media.Data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg payload", string(decoded))

	assert.Equal(t, "addNote", ankiCalls[1].Action)
	var note struct {
		Note struct {
			DeckName string            `json:"deckName"`
			Fields   map[string]string `json:"fields"`
			Tags     []string          `json:"tags"`
		} `json:"note"`
	}
	require.NoError(t, json.Unmarshal(ankiCalls[1].Params, &note))
	assert.Equal(t, "Review Task 1", note.Note.DeckName)
	assert.Equal(t, "I like the weather today.", note.Note.Fields["Sentence"])
	assert.Equal(t, "I like the w_____r today.", note.Note.Fields["Cloze"])
	assert.Equal(t, "weather", note.Note.Fields["Answer"])
	assert.Equal(t, "the state of the atmosphere", note.Note.Fields["Definition"])
	assert.Equal(t, `<img src="weather.jpg">`, note.Note.Fields["Image"])
	assert.Contains(t, note.Note.Tags, "task1")
}
