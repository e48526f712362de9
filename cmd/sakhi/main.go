// sakhi is the terminal client for ManoSakhi. It runs the same resolver as
// the server, in process, with an in-memory session.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/manosakhi/internal/app"
	"github.com/ashureev/manosakhi/internal/config"
	"github.com/ashureev/manosakhi/internal/lexicon"
	"github.com/ashureev/manosakhi/internal/resolver"
)

// options are the persistent flags shared by all subcommands.
type options struct {
	lexiconPath string
	seed        uint64
	verbose     bool
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "sakhi",
		Short: "ManoSakhi supportive chat in your terminal",
		Long: `sakhi talks with you the same way the ManoSakhi web chat does.

Crisis language always gets a safety message with helplines, without any
network call. Other messages go to the configured hosted models
(HUGGINGFACE_API_KEY, GEMINI_API_KEY) and fall back to local replies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.lexiconPath, "lexicon", os.Getenv("LEXICON_PATH"), "lexicon YAML file (default: embedded)")
	root.PersistentFlags().Uint64Var(&opts.seed, "seed", 0, "seed for exercise and template selection (0 = random)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log resolver decisions to stderr")

	root.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newClassifyCmd(opts),
		newLexiconCmd(),
	)
	return root
}

func (o *options) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *options) loadLexicon() (*lexicon.Store, error) {
	lex, err := lexicon.LoadOrDefault(o.lexiconPath)
	if err != nil {
		return nil, err
	}
	return lexicon.NewStore(lex, o.logger()), nil
}

// newResolver builds a resolver from the environment, like the server does.
func (o *options) newResolver(ctx context.Context) (*resolver.Resolver, *lexicon.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	lex, err := o.loadLexicon()
	if err != nil {
		return nil, nil, err
	}

	var extra []resolver.Option
	if o.seed != 0 {
		extra = append(extra, resolver.WithRand(rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))))
	}
	res, err := app.NewResolver(ctx, cfg.Remote, lex, o.logger(), extra...)
	if err != nil {
		return nil, nil, err
	}
	return res, lex, nil
}
