package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hairizuanbinnoorazman/rateloop/browser"
	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/run"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one session per credential and write the summary",
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	printBanner(out, "Run")

	log := logger.NewRunLogger(cfg.Log.Level, os.Stderr, nil)

	runs, db, err := openHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB(db)

	blobs, err := storage.New(ctx, cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	result, err := executeRun(ctx, cfg, runDeps{
		Launcher: browser.NewPlaywrightLauncher(cfg.PlaywrightConfig()),
		Runs:     runs,
		Storage:  blobs,
	}, run.TriggerManual, out)
	if result == nil {
		if errors.Is(err, credential.ErrSampleCreated) {
			fmt.Fprintln(out, failureStyle.Render(err.Error()))
		}
		return err
	}

	fmt.Fprintln(out)
	printOutcomes(out, result.Summary)
	if result.Artifacts.TextPath != "" {
		fmt.Fprintf(out, "Summary saved to %s\n", result.Artifacts.TextPath)
	}

	// the sessions ran; storage or history failures do not fail the command
	if err != nil {
		log.Error(ctx, "failed to record run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": result.RunID.String(),
		})
	}
	return nil
}
