package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider for all OpenAI-compatible APIs,
// including OpenAI, DeepSeek, MiniMax, Kimi, Qwen, Groq, etc.
type OpenAIProvider struct {
	client openai.Client
	id     string
	model  string
}

func NewOpenAIProvider(id, apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The SDK retries by default; the client must make exactly one
		// call per user action.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if id == "" {
		id = "openai"
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		id:     id,
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string         { return p.id }
func (p *OpenAIProvider) DefaultModel() string { return p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.UserText))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			// The API answered with an error payload.
			return "", &ResponseError{Provider: p.id, Upstream: apierr.Message}
		}
		return "", &TransportError{Provider: p.id, Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &ResponseError{Provider: p.id, Upstream: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}
