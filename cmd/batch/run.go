package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"veobatch/internal/app"
	"veobatch/internal/domain"
	"veobatch/internal/infra"
	"veobatch/internal/manifest"
	"veobatch/internal/providers/video"
	"veobatch/internal/scheduler"
	"veobatch/internal/storage"
)

var (
	runFile        string
	runRetryFailed bool
	runOutDir      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit every job of a manifest and wait for the batch to finish",
	Long: `Loads the manifest, queues its jobs and runs them under the configured
concurrency and per-minute submission limits. Progress is printed as jobs
move through the batch, followed by a summary table. The command exits
non-zero when any job failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := infra.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := infra.NewLoggerTo(os.Stderr, cfg.AppEnv).Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := app.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer rt.Close()

		m, err := manifest.Load(runFile)
		if err != nil {
			return err
		}
		if m.Defaults.Model == "" {
			m.Defaults.Model = rt.DefaultModel()
		}
		specs, err := m.Specs()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		stats, err := runManifest(ctx, rt.Scheduler, specs, out, runRetryFailed)
		if err != nil {
			return err
		}
		if runOutDir != "" {
			if err := saveVideos(ctx, rt.Scheduler, rt.Store, runOutDir); err != nil {
				logger.Warn().Err(err).Msg("batch: some videos could not be saved")
			}
		}

		renderSummary(out, rt.Scheduler.Jobs())
		fmt.Fprintf(out, "%d succeeded, %d failed\n", stats.Succeeded, stats.Failed)
		if stats.Failed > 0 {
			return errJobsFailed
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "jobs.yaml", "Path to the job manifest")
	runCmd.Flags().BoolVar(&runRetryFailed, "retry-failed", false, "Retry failed jobs once after the first pass")
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "", "Directory to copy finished videos into")
}

// runManifest queues specs, runs the batch to completion and optionally gives
// failed jobs one more attempt. An interrupted ctx stops the run; jobs still
// in flight end up failed.
func runManifest(ctx context.Context, s *scheduler.Scheduler, specs []domain.JobSpec, out io.Writer, retryFailed bool) (scheduler.Stats, error) {
	for i, spec := range specs {
		if _, err := s.Enqueue(spec); err != nil {
			return scheduler.Stats{}, fmt.Errorf("job %d: %w", i+1, err)
		}
	}

	unsubscribe := s.Subscribe(progressPrinter(out))
	defer unsubscribe()

	if err := runPass(ctx, s); err != nil {
		return s.Stats(), err
	}
	if retryFailed && ctx.Err() == nil {
		retried := 0
		for _, job := range s.Jobs() {
			if job.Status != domain.JobStatusFailed {
				continue
			}
			if err := s.Retry(job.ID); err == nil {
				retried++
			}
		}
		if retried > 0 {
			fmt.Fprintf(out, "retrying %d failed jobs\n", retried)
			if err := runPass(ctx, s); err != nil {
				return s.Stats(), err
			}
		}
	}
	return s.Stats(), nil
}

func runPass(ctx context.Context, s *scheduler.Scheduler) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	if err := s.Wait(ctx); err != nil {
		s.Stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}

func progressPrinter(out io.Writer) scheduler.Listener {
	var mu sync.Mutex
	last := make(map[string]string)
	return func(change scheduler.Change) {
		job := change.Job
		line := job.ProgressMessage
		switch job.Status {
		case domain.JobStatusSucceeded:
			line = job.ResultURL
		case domain.JobStatusFailed:
			line = job.ErrorMessage
		}

		mu.Lock()
		defer mu.Unlock()
		key := string(job.Status) + "|" + line
		if last[job.ID] == key {
			return
		}
		last[job.ID] = key
		fmt.Fprintf(out, "%s  %-10s  %s\n", shortID(job.ID), job.Status, line)
	}
}

func saveVideos(ctx context.Context, s *scheduler.Scheduler, store *storage.FileStore, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return s.DownloadAll(ctx, func(ctx context.Context, job domain.Job) error {
		data, err := store.Read(ctx, video.StorageKey(job.ID))
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, scheduler.DownloadFilename(job.ID)), data, 0o644)
	})
}

func renderSummary(w io.Writer, jobs []domain.Job) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Status", "Attempts", "Duration", "Prompt", "Result"})
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetAutoWrapText(false)
	for _, job := range jobs {
		result := job.ResultURL
		if job.Status == domain.JobStatusFailed {
			result = job.ErrorMessage
		}
		duration := "-"
		if !job.StartedAt.IsZero() && !job.FinishedAt.IsZero() {
			duration = job.FinishedAt.Sub(job.StartedAt).Round(time.Second).String()
		}
		table.Append([]string{
			shortID(job.ID),
			string(job.Status),
			strconv.Itoa(job.Attempts),
			duration,
			truncate(job.Spec.Input.PromptText(), 40),
			truncate(result, 96),
		})
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
