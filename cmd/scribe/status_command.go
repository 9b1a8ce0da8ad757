package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"scribe/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and active transcription status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func renderStatus(out io.Writer, status *api.DaemonStatus) {
	rows := [][]string{
		{"Running", yesNo(status.Running)},
		{"PID", fmt.Sprintf("%d", status.PID)},
		{"Polling", yesNo(status.Polling)},
		{"Session DB", status.SessionDBPath},
		{"Lock file", status.LockFilePath},
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

	sess := status.ActiveSession
	if sess == nil {
		fmt.Fprintln(out, "No active session.")
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Session %s\n", sess.ID)
	sessionRows := [][]string{
		{"Status", colorizeStatus(out, sess.Status)},
		{"Progress", fmt.Sprintf("%.1f%%", sess.Progress)},
		{"Source", describeSource(sess.Source)},
		{"Updated", sess.LastUpdatedAt},
	}
	if sess.JobID != "" {
		sessionRows = append(sessionRows, []string{"Job", sess.JobID})
	}
	if sess.ErrorMessage != "" {
		sessionRows = append(sessionRows, []string{"Error", sess.ErrorMessage})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, sessionRows, nil))

	if sess.Result != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, truncate(sess.Result, 500))
	}
}

func describeSource(source api.AudioSource) string {
	if source.Type == "url" {
		return source.URL
	}
	if source.Size > 0 {
		return fmt.Sprintf("%s (%s)", source.Name, humanSize(source.Size))
	}
	return source.Name
}

const (
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

func colorizeStatus(out io.Writer, status string) string {
	if !shouldColorize(out) {
		return status
	}
	switch strings.ToLower(status) {
	case "succeeded":
		return ansiGreen + status + ansiReset
	case "failed":
		return ansiRed + status + ansiReset
	case "canceled":
		return ansiYellow + status + ansiReset
	default:
		return status
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
