package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/session"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored transcription sessions",
	}

	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsDeleteCommand(ctx))
	sessionsCmd.AddCommand(newSessionsSweepCommand(ctx))

	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				// Expired records drop out whenever history is viewed.
				if _, err := store.SweepExpired(cmd.Context()); err != nil {
					return err
				}
				sessions, err := store.ListAll(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions stored.")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, sess := range sessions {
					rows = append(rows, []string{
						sess.ID,
						string(sess.Status),
						fmt.Sprintf("%.0f%%", sess.Progress),
						truncate(sourceLabel(sess), 40),
						sess.LastUpdatedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Status", "Progress", "Source", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session in full, including its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				sess, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if sess == nil {
					return fmt.Errorf("session %q not found", args[0])
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"ID", sess.ID},
					{"Status", string(sess.Status)},
					{"Progress", fmt.Sprintf("%.1f%%", sess.Progress)},
					{"Source", sourceLabel(sess)},
					{"Created", sess.CreatedAt.Local().Format("2006-01-02 15:04:05")},
					{"Expires", sess.ExpiresAt.Local().Format("2006-01-02 15:04:05")},
				}
				if sess.JobID != "" {
					rows = append(rows, []string{"Job", sess.JobID})
				}
				if sess.Options.Language != "" {
					rows = append(rows, []string{"Language", sess.Options.Language})
				}
				if sess.Options.Diarize {
					rows = append(rows, []string{"Diarize", "yes"})
				}
				if sess.ErrorMessage != "" {
					rows = append(rows, []string{"Error", sess.ErrorMessage})
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
				if sess.Result != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, sess.Result)
				}
				return nil
			})
		},
	}
}

func newSessionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				removed, err := store.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !removed {
					fmt.Fprintf(out, "Session %s not found.\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "Session %s deleted.\n", args[0])
				return nil
			})
		},
	}
}

func newSessionsSweepCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired sessions from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				var (
					removed int64
					err     error
				)
				if all {
					removed, err = store.Clear(cmd.Context())
				} else {
					removed, err = store.SweepExpired(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s).\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every session, expired or not")
	return cmd
}

func sourceLabel(sess *session.Session) string {
	if sess.AudioSource.Type == "url" {
		return sess.AudioSource.URL
	}
	if sess.AudioSource.Size > 0 {
		return fmt.Sprintf("%s (%s)", sess.AudioSource.Name, humanSize(sess.AudioSource.Size))
	}
	return sess.AudioSource.Name
}
