package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const (
	// DefaultGeminiURL is the generateContent endpoint used when the config
	// does not override it.
	DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

	geminiTimeout = 30 * time.Second
)

// Gemini calls the Google generative-language REST API. The raw wire contract
// is implemented directly because the pipeline needs to tell 429 (soft skip)
// apart from every other failure (fatal).
type Gemini struct {
	url        string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewGemini creates a Gemini backend with the given endpoint and API key.
func NewGemini(url, apiKey string) *Gemini {
	if url == "" {
		url = DefaultGeminiURL
	}
	return &Gemini{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: geminiTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "gemini",
			// Rate limiting is an expected soft condition, not a sign the
			// endpoint is down; don't let it trip the breaker.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrRateLimited)
			},
		}),
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate submits a single-turn prompt and returns the reply text.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	reply, err := g.breaker.Execute(func() (any, error) {
		return g.generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return reply.(string), nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode gemini request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("non-JSON gemini response: %s", truncate(string(data), 200))
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("unexpected gemini response shape: %s", truncate(string(data), 200))
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
