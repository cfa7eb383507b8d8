package analysis

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// HuggingFaceBackend calls an OpenAI-compatible inference router such as
// router.huggingface.co.
type HuggingFaceBackend struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewHuggingFaceBackend builds a backend for the given router and model.
func NewHuggingFaceBackend(token, baseURL, modelName string, maxTokens int, opts ...option.RequestOption) *HuggingFaceBackend {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(token),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(1),
	}
	reqOpts = append(reqOpts, opts...)

	return &HuggingFaceBackend{
		client:    openai.NewClient(reqOpts...),
		model:     modelName,
		maxTokens: int64(maxTokens),
	}
}

// Complete implements Backend.
func (b *HuggingFaceBackend) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(b.model),
		Messages: toOpenAIMessages(messages),
	}
	if b.maxTokens > 0 {
		params.MaxTokens = openai.Int(b.maxTokens)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// ChatModelBackend runs analysis on an eino chat model, for deployments that
// keep both conversation and analysis on Ark.
type ChatModelBackend struct {
	model model.BaseChatModel
}

// NewChatModelBackend wraps an eino chat model.
func NewChatModelBackend(m model.BaseChatModel) *ChatModelBackend {
	return &ChatModelBackend{model: m}
}

// Complete implements Backend.
func (b *ChatModelBackend) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	msg, err := b.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}
