package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/manosakhi/internal/lexicon"
)

func newLexiconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Inspect and validate lexicon files",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON schema of the lexicon document",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				schema, err := lexicon.Schema()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
				return err
			},
		},
		&cobra.Command{
			Use:   "default",
			Short: "Print the embedded default lexicon",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := cmd.OutOrStdout().Write(lexicon.DefaultYAML())
				return err
			},
		},
		&cobra.Command{
			Use:   "check <file>",
			Short: "Validate a lexicon file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				l, err := lexicon.Load(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(),
					"%s: ok (version %s, %d self-harm and %d violence keywords, %d exercises, %d fallback categories)\n",
					args[0], l.Version,
					len(l.Crisis.SelfHarm.Keywords), len(l.Crisis.Violence.Keywords),
					len(l.GroundingExercises), len(l.Fallback.Categories),
				)
				return err
			},
		},
	)
	return cmd
}
