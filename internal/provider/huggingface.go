package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultHuggingFaceURL is the OpenAI-compatible inference router.
const DefaultHuggingFaceURL = "https://router.huggingface.co/v1/"

// HuggingFace generates replies through the Hugging Face inference router
// using the OpenAI chat completions protocol.
type HuggingFace struct {
	client   openai.Client
	sampling Sampling
}

// NewHuggingFace creates a generator authenticated with token. An empty
// baseURL selects DefaultHuggingFaceURL.
func NewHuggingFace(token, baseURL string, sampling Sampling) (*HuggingFace, error) {
	if token == "" {
		return nil, errors.New("hugging face token is required")
	}
	if baseURL == "" {
		baseURL = DefaultHuggingFaceURL
	}
	client := openai.NewClient(
		option.WithAPIKey(token),
		option.WithBaseURL(baseURL),
		// One attempt per candidate; the resolver moves on instead of retrying.
		option.WithMaxRetries(0),
	)
	return &HuggingFace{client: client, sampling: sampling}, nil
}

// Generate implements Generator.
func (h *HuggingFace) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   openai.Int(h.sampling.MaxTokens),
		Temperature: openai.Float(h.sampling.Temperature),
		TopP:        openai.Float(h.sampling.TopP),
	}
	resp, err := h.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapErr(ProviderHuggingFace, model, err)
	}
	if len(resp.Choices) == 0 {
		return "", wrapErr(ProviderHuggingFace, model, errors.New("response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
