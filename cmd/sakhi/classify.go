package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ashureev/manosakhi/internal/safety"
)

// classification is the output of the classify command.
type classification struct {
	SelfHarm         bool   `json:"self_harm"`
	Violence         bool   `json:"violence"`
	FallbackCategory string `json:"fallback_category"`
	LexiconVersion   string `json:"lexicon_version"`
}

func newClassifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [message]",
		Short: "Show how a message is classified, without replying",
		Long: `Print the crisis signal and the local fallback category for a message.
Useful when reviewing keyword changes in a lexicon file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := messageFromArgs(cmd, args)
			if err != nil {
				return err
			}
			store, err := opts.loadLexicon()
			if err != nil {
				return err
			}
			lex := store.Current()

			sig := safety.Classify(lex, text)
			category, _ := lex.CategoryFor(text)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(classification{
				SelfHarm:         sig.SelfHarm,
				Violence:         sig.Violence,
				FallbackCategory: category.Name,
				LexiconVersion:   lex.Version,
			})
		},
	}
}
