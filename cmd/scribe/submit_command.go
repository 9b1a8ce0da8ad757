package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/session"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var language string
	var diarize bool
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <file-or-url>",
		Short: "Submit an audio file or URL for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			opts := api.JobOptions{Language: language, Diarize: diarize}
			target := strings.TrimSpace(args[0])
			out := cmd.OutOrStdout()

			var (
				sess *api.Session
				err  error
			)
			if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
				sess, err = client.SubmitURL(cmd.Context(), target, opts)
			} else {
				sess, err = submitLocalFile(cmd.Context(), client, ctx.configValue(), target, opts)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Session %s submitted (job %s)\n", sess.ID, sess.JobID)
			if !wait {
				fmt.Fprintln(out, "Run `scribe status` to follow progress.")
				return nil
			}
			return waitForCompletion(cmd.Context(), client, ctx.configValue(), sess.ID, out)
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "BCP 47 language hint (e.g. en, de-DE)")
	cmd.Flags().BoolVar(&diarize, "diarize", false, "Request speaker diarization")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the transcription finishes")
	return cmd
}

func submitLocalFile(ctx context.Context, client *api.Client, cfg *config.Config, target string, opts api.JobOptions) (*api.Session, error) {
	path, err := config.ExpandPath(target)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is a directory", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	return client.SubmitFile(ctx, filepath.Base(path), contentType, file, opts)
}

// waitForCompletion polls the daemon until the session reaches a terminal
// status and prints the transcript or error.
func waitForCompletion(ctx context.Context, client *api.Client, cfg *config.Config, sessionID string, out io.Writer) error {
	interval := 1200 * time.Millisecond
	if cfg != nil && cfg.Polling.IntervalMS > 0 {
		interval = time.Duration(cfg.Polling.IntervalMS) * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastProgress := -1.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		sess, err := client.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Progress != lastProgress && !session.Status(sess.Status).IsTerminal() {
			fmt.Fprintf(out, "%-12s %5.1f%%\n", sess.Status, sess.Progress)
			lastProgress = sess.Progress
		}

		switch session.Status(sess.Status) {
		case session.StatusSucceeded:
			fmt.Fprintln(out)
			fmt.Fprintln(out, sess.Result)
			return nil
		case session.StatusFailed:
			return fmt.Errorf("transcription failed: %s", sess.ErrorMessage)
		case session.StatusCanceled:
			fmt.Fprintln(out, "Transcription canceled.")
			return nil
		}
	}
}
