package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var (
		group   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <line>...",
		Short: "Send raw protocol lines and print the last response",
		Example: `  newsflow send --group alt.binaries.test "XOVER 1-100"
  newsflow send DATE`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.StartEngine(cmd.Context()); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out, err := a.Engine.Send(ctx, group, args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(os.Stdout, string(out))
			return err
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "newsgroup to select first")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	return cmd
}
