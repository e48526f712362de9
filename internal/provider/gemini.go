package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini generates replies with Google's Gemini API.
type Gemini struct {
	client   *genai.Client
	sampling Sampling
}

// NewGemini creates a Gemini generator authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey string, sampling Sampling) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, sampling: sampling}, nil
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	system, contents := toGeminiContents(messages)
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.sampling.Temperature)),
		TopP:            genai.Ptr(float32(g.sampling.TopP)),
		MaxOutputTokens: int32(g.sampling.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", wrapErr(ProviderGemini, model, err)
	}
	return resp.Text(), nil
}

// toGeminiContents splits system messages into the system instruction and
// maps assistant turns to the model role.
func toGeminiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
