// Package app wires configuration into the lexicon and resolver shared by
// the server and the command line client.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/manosakhi/internal/config"
	"github.com/ashureev/manosakhi/internal/lexicon"
	"github.com/ashureev/manosakhi/internal/provider"
	"github.com/ashureev/manosakhi/internal/resolver"
)

// LoadLexicon loads the configured lexicon, or the embedded default, and
// starts watching the file when cfg.Watch is set. The watch stops with ctx.
func LoadLexicon(ctx context.Context, cfg config.LexiconConfig, logger *slog.Logger) (*lexicon.Store, error) {
	lex, err := lexicon.LoadOrDefault(cfg.Path)
	if err != nil {
		return nil, err
	}
	store := lexicon.NewStore(lex, logger)
	if cfg.Watch {
		if err := store.Watch(ctx, cfg.Path); err != nil {
			return nil, fmt.Errorf("watch lexicon: %w", err)
		}
	}
	logger.Info("Lexicon loaded", "version", lex.Version, "path", cfg.Path, "watch", cfg.Watch)
	return store, nil
}

// Generators creates one generator per provider that has credentials.
func Generators(ctx context.Context, cfg config.RemoteConfig) (map[string]provider.Generator, error) {
	sampling := provider.DefaultSampling()
	gens := make(map[string]provider.Generator)

	if cfg.HuggingFaceToken != "" {
		hf, err := provider.NewHuggingFace(cfg.HuggingFaceToken, cfg.HuggingFaceBaseURL, sampling)
		if err != nil {
			return nil, err
		}
		gens[provider.ProviderHuggingFace] = hf
	}
	if cfg.GeminiAPIKey != "" {
		gem, err := provider.NewGemini(ctx, cfg.GeminiAPIKey, sampling)
		if err != nil {
			return nil, err
		}
		gens[provider.ProviderGemini] = gem
	}
	return gens, nil
}

// NewResolver builds the resolver from configuration. Without any provider
// token the resolver runs on the crisis script and local templates only.
func NewResolver(ctx context.Context, cfg config.RemoteConfig, lex resolver.LexiconSource, logger *slog.Logger, opts ...resolver.Option) (*resolver.Resolver, error) {
	specs, err := provider.ParseSpecs(cfg.Candidates)
	if err != nil {
		return nil, fmt.Errorf("parse model candidates: %w", err)
	}
	gens, err := Generators(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create generators: %w", err)
	}

	candidates, skipped := provider.BuildCandidates(specs, gens)
	for _, s := range skipped {
		logger.Info("Model candidate disabled, no credentials for provider", "provider", s.Provider, "model", s.Model)
	}
	if len(candidates) == 0 {
		logger.Warn("Remote generation disabled, replies will use local templates")
	}

	opts = append([]resolver.Option{resolver.WithLogger(logger)}, opts...)
	return resolver.New(lex, candidates, resolver.Config{
		HistoryTurns:   cfg.HistoryTurns,
		MinReplyLength: cfg.MinReplyLength,
		RemoteTimeout:  cfg.Timeout,
	}, opts...), nil
}
