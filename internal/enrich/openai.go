package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAI is an alternative generative backend using chat completions. It
// answers the same prompt template as Gemini and is parsed the same way.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI backend. Model defaults to gpt-4o-mini.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Generate submits the prompt as a single user message.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.3,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", ErrRateLimited
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
