package assist

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// geminiBaseURL is Gemini's OpenAI-compatible endpoint.
const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// defaultModel is used when no model is configured.
const defaultModel = "gemini-2.0-flash"

// defaultRequestTimeout bounds a single completion call.
const defaultRequestTimeout = 2 * time.Minute

// GeminiProvider implements Provider against the Gemini API through its
// OpenAI-compatible endpoint, using the official OpenAI Go SDK. Any other
// OpenAI-compatible backend can be targeted via WithBaseURL.
type GeminiProvider struct {
	model      string
	clientOpts []option.RequestOption

	client openai.Client
}

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithModel sets the model name (default: "gemini-2.0-flash").
func WithModel(model string) GeminiOption {
	return func(p *GeminiProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithAPIKey sets the API key used for authentication.
func WithAPIKey(key string) GeminiOption {
	return func(p *GeminiProvider) {
		if key != "" {
			p.clientOpts = append(p.clientOpts, option.WithAPIKey(key))
		}
	}
}

// WithBaseURL overrides the API base URL, enabling Ollama, vLLM, or other
// OpenAI-compatible endpoints.
func WithBaseURL(url string) GeminiOption {
	return func(p *GeminiProvider) {
		if url != "" {
			p.clientOpts = append(p.clientOpts, option.WithBaseURL(url))
		}
	}
}

// WithTimeout sets the per-request timeout (default: 2 minutes).
func WithTimeout(d time.Duration) GeminiOption {
	return func(p *GeminiProvider) {
		if d > 0 {
			p.clientOpts = append(p.clientOpts, option.WithRequestTimeout(d))
		}
	}
}

// NewGeminiProvider creates a GeminiProvider with the given options. Later
// options win, so WithBaseURL overrides the Gemini default.
func NewGeminiProvider(opts ...GeminiOption) *GeminiProvider {
	p := &GeminiProvider{
		model: defaultModel,
		clientOpts: []option.RequestOption{
			option.WithBaseURL(geminiBaseURL),
			option.WithRequestTimeout(defaultRequestTimeout),
		},
	}
	for _, o := range opts {
		o(p)
	}
	p.client = openai.NewClient(p.clientOpts...)
	return p
}

// Complete sends a single chat completion request and returns the response
// content with token usage metadata.
func (p *GeminiProvider) Complete(ctx context.Context, messages []Message) (*Response, error) {
	params := openai.ChatCompletionNewParams{Model: p.model}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("gemini chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("gemini returned no choices")
	}

	return &Response{
		Content:          completion.Choices[0].Message.Content,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}
