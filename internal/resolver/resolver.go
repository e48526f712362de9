// Package resolver decides what the assistant says for one user message:
// a static safety script, a remote model reply, or a local template.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/lexicon"
	"github.com/ashureev/manosakhi/internal/provider"
	"github.com/ashureev/manosakhi/internal/safety"
)

// Source tells which path produced a reply.
type Source string

const (
	SourceCrisis   Source = "crisis"
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Reply is the outcome of one resolution. Text is always non-empty.
type Reply struct {
	Text     string              `json:"text"`
	Source   Source              `json:"source"`
	Model    string              `json:"model,omitempty"`
	Category string              `json:"category,omitempty"`
	Signal   safety.CrisisSignal `json:"signal"`
}

// LexiconSource yields the lexicon to use for a resolution.
type LexiconSource interface {
	Current() *lexicon.Lexicon
}

// Config bounds the remote part of a resolution.
type Config struct {
	HistoryTurns   int
	MinReplyLength int
	RemoteTimeout  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryTurns:   8,
		MinReplyLength: 12,
		RemoteTimeout:  25 * time.Second,
	}
}

// Rejection reasons for remote replies.
var (
	errEmptyReply     = errors.New("empty reply")
	errShortReply     = errors.New("reply below minimum length")
	errRepeatedReply  = errors.New("reply repeats previous assistant turn")
	errCandidatePanic = errors.New("generator panicked")
)

// Resolver is safe for concurrent use. It keeps no conversation state; the
// transcript and last reply are supplied by the caller on every call.
type Resolver struct {
	lexicon    LexiconSource
	candidates []provider.Candidate
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRand sets the random source used for exercise and template selection.
func WithRand(rng *rand.Rand) Option {
	return func(r *Resolver) { r.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithClock sets the time source used to stamp turns in Respond.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a resolver. candidates are tried in the given order; an empty
// list disables remote resolution.
func New(lex LexiconSource, candidates []provider.Candidate, cfg Config, opts ...Option) *Resolver {
	defaults := DefaultConfig()
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaults.HistoryTurns
	}
	if cfg.MinReplyLength < 0 {
		cfg.MinReplyLength = 0
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaults.RemoteTimeout
	}

	r := &Resolver{
		lexicon:    lex,
		candidates: append([]provider.Candidate(nil), candidates...),
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		seed := uint64(time.Now().UnixNano())
		r.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return r
}

// RemoteEnabled reports whether any remote candidate is configured.
func (r *Resolver) RemoteEnabled() bool {
	return len(r.candidates) > 0
}

// CandidateIDs returns the candidate list in priority order.
func (r *Resolver) CandidateIDs() []string {
	ids := make([]string, 0, len(r.candidates))
	for _, c := range r.candidates {
		ids = append(ids, c.ID())
	}
	return ids
}

// Respond resolves userText against state and returns the new state with the
// user turn and the reply appended together. state is not modified.
func (r *Resolver) Respond(ctx context.Context, state domain.SessionState, userText string) (domain.SessionState, Reply) {
	last := state.LastReply
	if last == "" {
		last = state.Transcript.LastAssistantText()
	}
	reply := r.Resolve(ctx, userText, state.Transcript, last)
	return state.WithExchange(userText, reply.Text, r.now()), reply
}

// Resolve produces the reply for userText. It never fails and returns within
// one RemoteTimeout per candidate.
func (r *Resolver) Resolve(ctx context.Context, userText string, transcript domain.Transcript, lastReply string) Reply {
	lex := r.lexicon.Current()

	sig := safety.Classify(lex, userText)
	if sig.Any() {
		var text string
		r.withRand(func(rng *rand.Rand) {
			text = safety.Script(lex, sig, rng, lastReply)
		})
		r.logger.Info("Crisis language detected, returning safety script",
			"self_harm", sig.SelfHarm,
			"violence", sig.Violence,
		)
		return Reply{Text: text, Source: SourceCrisis, Signal: sig}
	}

	if len(r.candidates) > 0 {
		messages := BuildContext(systemPrompt, transcript, userText, r.cfg.HistoryTurns)
		if reply, ok := r.resolveRemote(ctx, messages, lastReply); ok {
			return reply
		}
	}

	return r.fallback(lex, userText, lastReply)
}

func (r *Resolver) resolveRemote(ctx context.Context, messages []provider.Message, lastReply string) (Reply, bool) {
	for i, c := range r.candidates {
		if ctx.Err() != nil {
			r.logger.Warn("Resolution cancelled, skipping remaining candidates",
				"remaining", len(r.candidates)-i,
				"error", ctx.Err(),
			)
			return Reply{}, false
		}

		start := time.Now()
		text, err := r.generate(ctx, c, messages)
		if err == nil {
			text, err = r.accept(text, lastReply)
		}
		if err != nil {
			r.logger.Warn("Remote candidate rejected",
				"candidate", c.ID(),
				"position", i+1,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
			)
			continue
		}

		r.logger.Info("Remote candidate accepted",
			"candidate", c.ID(),
			"position", i+1,
			"duration_ms", time.Since(start).Milliseconds(),
			"reply_length", len(text),
		)
		return Reply{Text: text, Source: SourceRemote, Model: c.ID()}, true
	}
	return Reply{}, false
}

type generation struct {
	text string
	err  error
}

// generate makes one bounded call. A generator that ignores its context is
// abandoned when the deadline passes.
func (r *Resolver) generate(ctx context.Context, c provider.Candidate, messages []provider.Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.RemoteTimeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- generation{err: fmt.Errorf("%w: %v", errCandidatePanic, p)}
			}
		}()
		text, err := c.Generator.Generate(callCtx, c.Model, messages)
		done <- generation{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-callCtx.Done():
		return "", fmt.Errorf("%w: %w", provider.ErrGeneration, callCtx.Err())
	}
}

// accept trims text and applies the quality rules. Repeats of lastReply are
// rejected so the next candidate gets a chance.
func (r *Resolver) accept(text, lastReply string) (string, error) {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return "", errEmptyReply
	case utf8.RuneCountInString(trimmed) <= r.cfg.MinReplyLength:
		return "", fmt.Errorf("%w: %d runes", errShortReply, utf8.RuneCountInString(trimmed))
	case trimmed == strings.TrimSpace(lastReply):
		return "", errRepeatedReply
	}
	return trimmed, nil
}

// fallback picks a template from the first matching category. The default
// pool, then a fixed reply, back it up when every template would repeat
// lastReply.
func (r *Resolver) fallback(lex *lexicon.Lexicon, userText, lastReply string) Reply {
	category, _ := lex.CategoryFor(userText)
	pools := [][]string{category.Replies}
	if category.Name != lexicon.DefaultCategory {
		pools = append(pools, lex.Fallback.Default)
	}

	var text string
	for _, pool := range pools {
		if text = r.pick(pool, lastReply); text != "" {
			break
		}
	}
	if text == "" {
		text = lastResortReply
	}

	r.logger.Info("Using local fallback reply", "category", category.Name)
	return Reply{Text: text, Source: SourceFallback, Category: category.Name}
}

// pick returns a uniformly random non-blank entry of pool that differs from
// avoid, or "" when there is none.
func (r *Resolver) pick(pool []string, avoid string) string {
	avoid = strings.TrimSpace(avoid)
	options := make([]string, 0, len(pool))
	for _, p := range pool {
		p = strings.TrimSpace(p)
		if p != "" && p != avoid {
			options = append(options, p)
		}
	}
	if len(options) == 0 {
		return ""
	}
	var i int
	r.withRand(func(rng *rand.Rand) {
		i = rng.IntN(len(options))
	})
	return options[i]
}

func (r *Resolver) withRand(fn func(*rand.Rand)) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	fn(r.rng)
}
