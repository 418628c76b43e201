// Package image finds an illustrative picture for a text query by scraping
// an image-search results page and downloading candidates until one works.
package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultSearchURL is the image-search results endpoint; the query is
	// passed as the q parameter.
	DefaultSearchURL = "https://www.bing.com/images/search"

	searchTimeout = 30 * time.Second

	// browserUserAgent identifies us to the search engine, which rejects
	// requests without a browser-looking User-Agent.
	browserUserAgent = "Mozilla/5.0"
)

// Fallback extraction when the structured result markup is absent: the media
// URL also appears as an embedded "murl" JSON string in the raw page, plain
// or HTML-entity escaped.
var (
	murlPattern        = regexp.MustCompile(`"murl":"(https?://[^"]+)"`)
	murlEscapedPattern = regexp.MustCompile(`&quot;murl&quot;:&quot;(https?://[^&]+)&quot;`)
)

// Searcher queries an image-search engine and extracts candidate image URLs
// from the results page.
type Searcher struct {
	searchURL  string
	httpClient *http.Client
}

// NewSearcher creates a searcher against the given results endpoint.
func NewSearcher(searchURL string) *Searcher {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Searcher{
		searchURL: searchURL,
		httpClient: &http.Client{
			Timeout: searchTimeout,
		},
	}
}

// Search returns candidate image URLs in discovery order, deduplicated with
// first occurrence winning. An empty slice means no results, not an error.
func (s *Searcher) Search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{}
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	return ExtractCandidates(body), nil
}

// resultMetadata is the JSON blob each structured search result carries in
// its m attribute.
type resultMetadata struct {
	MediaURL string `json:"murl"`
}

// ExtractCandidates pulls candidate image URLs out of a results page. The
// structured per-result metadata is preferred; the regex scan over the raw
// body only runs when the structured markup yields nothing.
func ExtractCandidates(body []byte) []string {
	candidates := extractStructured(body)
	if len(candidates) == 0 {
		candidates = extractEmbedded(body)
	}
	return Dedupe(candidates)
}

func extractStructured(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var urls []string
	doc.Find("a.iusc").Each(func(i int, s *goquery.Selection) {
		raw, ok := s.Attr("m")
		if !ok {
			return
		}
		var meta resultMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return
		}
		if strings.HasPrefix(meta.MediaURL, "http") {
			urls = append(urls, meta.MediaURL)
		}
	})
	return urls
}

func extractEmbedded(body []byte) []string {
	var urls []string
	for _, m := range murlPattern.FindAllSubmatch(body, -1) {
		urls = append(urls, string(m[1]))
	}
	for _, m := range murlEscapedPattern.FindAllSubmatch(body, -1) {
		urls = append(urls, string(m[1]))
	}
	return urls
}

// Dedupe removes repeated URLs while preserving first-occurrence order. The
// order decides which candidate gets downloaded first, so it must be stable.
func Dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	deduped := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		deduped = append(deduped, u)
	}
	return deduped
}
