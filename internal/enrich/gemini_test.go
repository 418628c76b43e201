package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(text string) string {
	reply, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	})
	return string(reply)
}

func TestGeminiGenerate(t *testing.T) {
	var gotBody geminiRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(geminiReply("Sentence: hello")))
	}))
	defer srv.Close()

	gemini := NewGemini(srv.URL, "secret-key")
	text, err := gemini.Generate(context.Background(), "the prompt")
	require.NoError(t, err)

	assert.Equal(t, "Sentence: hello", text)
	assert.Equal(t, "secret-key", gotKey)
	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 1)
	assert.Equal(t, "the prompt", gotBody.Contents[0].Parts[0].Text)
}

func TestGeminiRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gemini := NewGemini(srv.URL, "key")
	_, err := gemini.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGeminiServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	gemini := NewGemini(srv.URL, "key")
	_, err := gemini.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "status 500")
}

func TestGeminiUnexpectedShape(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no candidates", `{"candidates": []}`},
		{"no parts", `{"candidates": [{"content": {"parts": []}}]}`},
		{"not json", `<html>login required</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			gemini := NewGemini(srv.URL, "key")
			_, err := gemini.Generate(context.Background(), "prompt")
			require.Error(t, err)
		})
	}
}

func TestGeminiRateLimitDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gemini := NewGemini(srv.URL, "key")
	for i := 0; i < 10; i++ {
		_, err := gemini.Generate(context.Background(), "prompt")
		// Every attempt must still reach the endpoint and report 429, not a
		// breaker-open error.
		assert.ErrorIs(t, err, ErrRateLimited)
	}
}
