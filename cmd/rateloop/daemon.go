package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gocronui "github.com/go-co-op/gocron-ui/server"
	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"

	"github.com/hairizuanbinnoorazman/rateloop/browser"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/metrics"
	"github.com/hairizuanbinnoorazman/rateloop/run"
	"github.com/hairizuanbinnoorazman/rateloop/server"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run on a schedule and serve run history and metrics",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	printBanner(cmd.OutOrStdout(), "Daemon Mode")

	log := logger.NewLogrusLogger(cfg.Log.Level).WithField("component", "daemon")
	log.Info(ctx, "starting daemon", map[string]interface{}{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
	})

	runs, db, err := openHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB(db)

	blobs, err := storage.New(ctx, cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	collector := metrics.NewCollector()
	deps := runDeps{
		Launcher: browser.NewPlaywrightLauncher(cfg.PlaywrightConfig()),
		Runs:     runs,
		Storage:  blobs,
		Recorder: collector,

		JSONConsole: true,
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	var runJob gocron.Job
	jobOpts := []gocron.JobOption{
		gocron.WithName("Rating Run"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if cfg.Schedule.RunOnStart {
		jobOpts = append(jobOpts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	runJob, err = s.NewJob(
		gocron.CronJob(cfg.Schedule.Cron, false),
		gocron.NewTask(func() {
			scheduledRun(ctx, cfg, deps, log)
			if runJob != nil {
				if nextRun, err := runJob.NextRun(); err == nil {
					log.Info(ctx, "next run scheduled", map[string]interface{}{
						"next_run": nextRun.Format(time.RFC3339),
					})
				}
			}
		}),
		jobOpts...,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule run: %w", err)
	}

	s.Start()
	if nextRun, err := runJob.NextRun(); err == nil {
		log.Info(ctx, "job scheduled", map[string]interface{}{
			"job_name": runJob.Name(),
			"schedule": cfg.Schedule.Cron,
			"next_run": nextRun.Format(time.RFC3339),
		})
	}

	if runs == nil {
		log.Warn(ctx, "run history disabled, api will be unavailable", nil)
	} else {
		srv := server.New(cfg.ServerOptions(), server.Deps{
			DB:      db,
			Runs:    runs,
			Storage: blobs,
			Metrics: collector.Handler(),
			Logger:  log,
		})
		srv.Start(ctx)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(shutdownCtx, "server shutdown failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	if cfg.Schedule.UIPort > 0 {
		ui := gocronui.NewServer(s, cfg.Schedule.UIPort, gocronui.WithTitle("rateloop - Scheduler"))
		addr := fmt.Sprintf(":%d", cfg.Schedule.UIPort)
		go func() {
			log.Info(ctx, "scheduler dashboard started", map[string]interface{}{
				"address": addr,
			})
			if err := http.ListenAndServe(addr, ui.Router); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "scheduler dashboard failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	<-ctx.Done()

	log.Warn(context.Background(), "shutting down scheduler due to system signal", nil)
	return s.Shutdown()
}

// scheduledRun performs one scheduled run and logs its outcome.
func scheduledRun(ctx context.Context, cfg *Config, deps runDeps, log logger.Logger) {
	result, err := executeRun(ctx, cfg, deps, run.TriggerSchedule, os.Stdout)
	if err != nil {
		log.Error(ctx, "scheduled run failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if result != nil {
		log.Info(ctx, "scheduled run finished", map[string]interface{}{
			"run_id":     result.RunID.String(),
			"successful": result.Summary.SuccessCount(),
			"failed":     result.Summary.FailCount(),
		})
	}
}
