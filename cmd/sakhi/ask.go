package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Get a single reply",
		Long: `Resolve one message and print the reply. Without arguments the
message is read from standard input.`,
		Example: `  sakhi ask "I have exams next week and can't sleep"
  echo "I feel lonely" | sakhi ask --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := messageFromArgs(cmd, args)
			if err != nil {
				return err
			}

			res, _, err := opts.newResolver(cmd.Context())
			if err != nil {
				return err
			}
			reply := res.Resolve(cmd.Context(), text, nil, "")

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reply)
			}
			_, err = fmt.Fprintln(out, reply.Text)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the reply with its source as JSON")
	return cmd
}

// messageFromArgs joins args, or reads stdin when there are none.
func messageFromArgs(cmd *cobra.Command, args []string) (string, error) {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read message: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("message is empty")
	}
	return text, nil
}
