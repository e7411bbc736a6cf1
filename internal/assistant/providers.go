package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Gemini calls the Gemini generateContent endpoint.
type Gemini struct {
	model  string
	client *genai.Client
}

// NewGemini returns a Gemini provider. baseURL may be empty for the public endpoint.
func NewGemini(ctx context.Context, apiKey, baseURL, model string) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing Gemini client: %w", err)
	}
	return &Gemini{model: model, client: client}, nil
}

// Generate returns the text of the first part of the first candidate.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	model  string
	client *openai.Client
}

func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{model: model, client: openai.NewClientWithConfig(config)}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// New picks a provider by name: "gemini" (default) or "openai".
func New(ctx context.Context, name, apiKey, baseURL, model string) (Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assistant: missing API key")
	}
	switch strings.ToLower(name) {
	case "", "gemini":
		if model == "" {
			model = "gemini-2.0-flash"
		}
		return NewGemini(ctx, apiKey, baseURL, model)
	case "openai":
		if model == "" {
			model = openai.GPT4oMini
		}
		return NewOpenAI(apiKey, baseURL, model), nil
	default:
		return nil, fmt.Errorf("assistant: unknown provider %q", name)
	}
}
