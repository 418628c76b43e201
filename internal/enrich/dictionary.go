package enrich

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultDictionaryURL is the Cambridge dictionary page prefix; the
	// looked-up word is appended to it.
	DefaultDictionaryURL = "https://dictionary.cambridge.org/dictionary/english/"

	dictionaryTimeout = 10 * time.Second

	// browserUserAgent identifies requests to sites that reject clients
	// without a browser-looking User-Agent.
	browserUserAgent = "Mozilla/5.0"

	maxExamples = 3
)

// Dictionary scrapes a dictionary page for a single word.
type Dictionary struct {
	baseURL    string
	httpClient *http.Client
}

// NewDictionary creates a dictionary enricher for the given page prefix.
func NewDictionary(baseURL string) *Dictionary {
	if baseURL == "" {
		baseURL = DefaultDictionaryURL
	}
	return &Dictionary{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: dictionaryTimeout,
		},
	}
}

// Lookup fetches and parses the dictionary entry for word. A missing page or
// an entry without a definition yields ErrNoResult, since a card without a
// definition is not worth adding.
func (d *Dictionary) Lookup(ctx context.Context, word string) (Result, error) {
	pageURL := d.baseURL + strings.ReplaceAll(word, " ", "-")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create dictionary request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dictionary request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// No entry for this word (or the site is refusing us); either way
		// there is nothing to build a card from.
		return nil, ErrNoResult
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dictionary page: %w", err)
	}

	result := Result{
		FieldPhonetic:   strings.TrimSpace(doc.Find(".ipa.dipa").First().Text()),
		FieldDefinition: strings.TrimSpace(doc.Find(".def.ddef_d.db").First().Text()),
		FieldExamples:   extractExamples(doc),
		FieldSynonyms:   extractSynonyms(doc),
	}

	if result[FieldDefinition] == "" {
		return nil, ErrNoResult
	}

	return result, nil
}

func extractExamples(doc *goquery.Document) string {
	var examples []string
	doc.Find(".examp.dexamp").EachWithBreak(func(i int, s *goquery.Selection) bool {
		examples = append(examples, strings.TrimSpace(s.Text()))
		return len(examples) < maxExamples
	})
	return strings.Join(examples, "\n")
}

func extractSynonyms(doc *goquery.Document) string {
	seen := make(map[string]bool)
	doc.Find(".xref.syn").Each(func(i int, s *goquery.Selection) {
		if syn := strings.TrimSpace(s.Text()); syn != "" {
			seen[syn] = true
		}
	})

	synonyms := make([]string, 0, len(seen))
	for syn := range seen {
		synonyms = append(synonyms, syn)
	}
	// Set order is random; sort so repeated lookups produce the same field.
	sort.Strings(synonyms)
	return strings.Join(synonyms, ", ")
}
