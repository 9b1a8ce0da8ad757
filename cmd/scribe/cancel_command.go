package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active transcription",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.client().Cancel(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sess == nil {
				fmt.Fprintln(out, "Nothing to cancel.")
				return nil
			}
			fmt.Fprintf(out, "Session %s is now %s.\n", sess.ID, sess.Status)
			return nil
		},
	}
}
