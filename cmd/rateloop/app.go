package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/rateloop/automation"
	"github.com/hairizuanbinnoorazman/rateloop/browser"
	"github.com/hairizuanbinnoorazman/rateloop/clicker"
	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/database"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/orchestrator"
	"github.com/hairizuanbinnoorazman/rateloop/report"
	"github.com/hairizuanbinnoorazman/rateloop/retry"
	"github.com/hairizuanbinnoorazman/rateloop/run"
	"github.com/hairizuanbinnoorazman/rateloop/session"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
)

// runDeps are the long lived services shared by every run.
type runDeps struct {
	Launcher browser.Launcher
	Runs     run.Store // nil disables history
	Storage  storage.BlobStorage
	Recorder orchestrator.Recorder

	// JSONConsole writes run logs to the console as JSON instead of
	// colored text.
	JSONConsole bool
}

// openHistory connects the run history database. It returns a nil store
// when history is disabled.
func openHistory(ctx context.Context, cfg *Config, log logger.Logger) (run.Store, *gorm.DB, error) {
	if !cfg.Database.Enabled {
		return nil, nil, nil
	}

	db, err := database.Connect(cfg.DatabaseOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.Driver == database.DriverSQLite {
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, err
		}
	}

	log.Info(ctx, "database connected", map[string]interface{}{
		"driver": cfg.Database.Driver,
	})
	return run.NewMySQLStore(db, log), db, nil
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// openRunLog creates the local log file of one run.
func openRunLog(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, "run_"+report.Stamp(now)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	return f, nil
}

// newOrchestrator wires the session runner and the orchestrator for one run.
func newOrchestrator(cfg *Config, deps runDeps, log logger.Logger) (*orchestrator.Orchestrator, error) {
	site := cfg.SessionSite()
	if err := site.Validate(); err != nil {
		return nil, err
	}

	src := cfg.RandomSource()
	clicks, err := clicker.New(cfg.ClickerConfig(), src, log)
	if err != nil {
		return nil, err
	}

	runner := session.NewRunner(site, retry.New(cfg.RetryPolicy(), log), clicks, src, log)

	var opts []orchestrator.Option
	if deps.Recorder != nil {
		opts = append(opts, orchestrator.WithRecorder(deps.Recorder))
	}
	return orchestrator.New(deps.Launcher, runner, cfg.OrchestratorConfig(), log, opts...), nil
}

func runLogger(cfg *Config, deps runDeps, console, file io.Writer) logger.Logger {
	if deps.JSONConsole {
		return logger.NewJSONRunLogger(cfg.Log.Level, console, file)
	}
	return logger.NewRunLogger(cfg.Log.Level, console, file)
}

// executeRun loads credentials and performs one recorded run. Run log
// entries go to console and to a per-run file that is uploaded with the
// summary.
func executeRun(ctx context.Context, cfg *Config, deps runDeps, trigger run.Trigger, console io.Writer) (*automation.Result, error) {
	logFile, err := openRunLog(cfg.Reports.LogDir, time.Now())
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	log := runLogger(cfg, deps, console, logFile)

	creds, err := credential.Load(ctx, cfg.CredentialOptions(), log)
	if err != nil {
		return nil, err
	}

	orch, err := newOrchestrator(cfg, deps, log)
	if err != nil {
		return nil, err
	}

	pipeline := automation.NewPipeline(automation.Config{
		TargetURL: cfg.SessionSite().RateURL(),
		ReportDir: cfg.Reports.Dir,
		TimeLimit: cfg.Reports.TimeLimit,
		LogFile:   logFile.Name(),
		Metadata: run.JSONMap{
			"version":        Version,
			"max_concurrent": cfg.Browser.MaxConcurrent,
		},
	}, orch, deps.Runs, deps.Storage, log)

	return pipeline.Run(ctx, creds, trigger)
}
