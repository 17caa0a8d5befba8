package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/service"
)

var awaitCmd = &cobra.Command{
	Use:   "await <video-id>",
	Short: "Poll a video's transcode job until it finishes",
	Long: `Poll the transcode job of one video until it reaches a terminal state,
then record the outcome exactly as a webhook delivery would.

Useful when a webhook was missed and waiting for the reconciler is not
an option.`,
	Args: cobra.ExactArgs(1),
	RunE: runAwait,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation sweep",
	Long: `Check every video stuck in Encoding for longer than scheduler.reconcile_grace
against its transcode job, and record any outcome that was never delivered.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	awaitCmd.Flags().Duration("timeout", 0, "give up after this long (default encoding.poll_timeout)")
	awaitCmd.Flags().Duration("interval", 0, "time between status checks (default encoding.poll_interval)")
	rootCmd.AddCommand(awaitCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func runAwait(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	id, err := models.ParseULID(args[0])
	if err != nil {
		return fmt.Errorf("parsing video id: %w", err)
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = cfg.Encoding.PollTimeout
	}
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = cfg.Encoding.PollInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	video, err := a.videos.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("getting video: %w", err)
	}
	if video == nil {
		return models.ErrVideoNotFound
	}
	if video.TranscodeJobRef == nil || video.TranscodeAssetRef == nil {
		return fmt.Errorf("video %s has no transcode job", id)
	}
	if status := video.Status(); status != models.VideoStatusEncoding {
		fmt.Fprintf(cmd.OutOrStdout(), "video %s is already %s\n", id, status)
		return nil
	}

	res, err := a.poller.AwaitTerminal(ctx, *video.TranscodeJobRef, timeout, interval)
	if err != nil {
		return fmt.Errorf("awaiting job %s: %w", *video.TranscodeJobRef, err)
	}
	if res.Outcome == service.JobOutcomeTimedOut {
		return fmt.Errorf("job %s still %s after %s: %w",
			*video.TranscodeJobRef, res.State, res.Waited.Round(time.Second), models.ErrTimedOut)
	}
	if err := a.completion.ApplyResult(ctx, *video.TranscodeAssetRef, res); err != nil {
		return fmt.Errorf("applying job result: %w", err)
	}

	fresh, err := a.videos.GetByID(ctx, id)
	if err != nil || fresh == nil {
		return fmt.Errorf("reloading video: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s %s after %s; video %s is %s\n",
		*video.TranscodeJobRef, res.Outcome, res.Waited.Round(time.Second), id, fresh.Status())
	return nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.reconcile.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checked %d: %d finished, %d failed, %d still running, %d errors\n",
		report.Checked, report.Finished, report.Failed, report.Running, report.Errors)
	return nil
}
