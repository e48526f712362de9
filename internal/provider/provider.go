// Package provider implements the remote text-generation capability the
// resolver delegates to, and builds the ordered candidate list.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrGeneration is wrapped by every failure a Generator returns, whatever
// the underlying SDK error was.
var ErrGeneration = errors.New("generation failed")

// Role is the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the prompt context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Generator produces a reply for messages using the named model.
type Generator interface {
	Generate(ctx context.Context, model string, messages []Message) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, model string, messages []Message) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	return f(ctx, model, messages)
}

// Candidate is one entry in the fixed model priority list.
type Candidate struct {
	Provider  string
	Model     string
	Generator Generator
}

// ID returns the candidate as "provider:model".
func (c Candidate) ID() string {
	return c.Provider + ":" + c.Model
}

// Sampling holds generation parameters shared by all providers.
type Sampling struct {
	MaxTokens   int64
	Temperature float64
	TopP        float64
}

// DefaultSampling returns the parameters the assistant was tuned with.
func DefaultSampling() Sampling {
	return Sampling{
		MaxTokens:   150,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

func wrapErr(provider, model string, err error) error {
	return fmt.Errorf("%w: %s:%s: %w", ErrGeneration, provider, model, err)
}

// Provider names accepted in candidate specs.
const (
	ProviderHuggingFace = "hf"
	ProviderGemini      = "gemini"
)

// Spec is a parsed "provider:model" candidate entry.
type Spec struct {
	Provider string
	Model    string
}

// ParseSpecs parses a comma separated candidate list. Entries without a
// known provider prefix default to Hugging Face, so model IDs containing
// slashes need no prefix.
func ParseSpecs(list string) ([]Spec, error) {
	var specs []Spec
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		spec := Spec{Provider: ProviderHuggingFace, Model: raw}
		if prefix, model, ok := strings.Cut(raw, ":"); ok {
			switch strings.ToLower(prefix) {
			case ProviderHuggingFace, ProviderGemini:
				spec = Spec{Provider: strings.ToLower(prefix), Model: strings.TrimSpace(model)}
			}
		}
		if spec.Model == "" {
			return nil, fmt.Errorf("candidate %q has no model", raw)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// BuildCandidates resolves specs against the available generators in order.
// Specs whose provider has no generator (no token configured) are skipped
// and reported in the second result.
func BuildCandidates(specs []Spec, generators map[string]Generator) ([]Candidate, []Spec) {
	var (
		out     []Candidate
		skipped []Spec
	)
	for _, s := range specs {
		gen, ok := generators[s.Provider]
		if !ok || gen == nil {
			skipped = append(skipped, s)
			continue
		}
		out = append(out, Candidate{Provider: s.Provider, Model: s.Model, Generator: gen})
	}
	return out, skipped
}
