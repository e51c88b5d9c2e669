// Package automation runs the orchestrator as a recorded run: history rows,
// summary artifacts and the run log.
package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/orchestrator"
	"github.com/hairizuanbinnoorazman/rateloop/report"
	"github.com/hairizuanbinnoorazman/rateloop/run"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
)

// DefaultReportDir is the storage prefix under which run artifacts are kept.
const DefaultReportDir = "runs"

// Orchestrator runs one session per credential.
type Orchestrator interface {
	Run(ctx context.Context, creds []credential.Credential) (*orchestrator.Summary, error)
}

// Config holds the pipeline configuration.
type Config struct {
	TargetURL string
	ReportDir string

	// TimeLimit bounds the orchestrator run. Zero means no limit.
	TimeLimit time.Duration

	// LogFile is the local run log uploaded next to the summary.
	LogFile string

	Metadata run.JSONMap
}

// Result is the outcome of one pipeline run.
type Result struct {
	RunID     uuid.UUID
	Summary   *orchestrator.Summary
	Artifacts report.Artifacts
	LogPath   string
}

// Pipeline records orchestrator runs.
type Pipeline struct {
	config       Config
	orchestrator Orchestrator
	runStore     run.Store
	storage      storage.BlobStorage
	reports      *report.Writer
	logger       logger.Logger
}

// NewPipeline creates a new pipeline. runStore may be nil, in which case
// no history is kept.
func NewPipeline(
	config Config,
	orch Orchestrator,
	runStore run.Store,
	blobStorage storage.BlobStorage,
	log logger.Logger,
) *Pipeline {
	if config.ReportDir == "" {
		config.ReportDir = DefaultReportDir
	}
	return &Pipeline{
		config:       config,
		orchestrator: orch,
		runStore:     runStore,
		storage:      blobStorage,
		reports:      report.NewWriter(blobStorage, log),
		logger:       log,
	}
}

// Run executes one recorded run.
//
// The returned Result is non-nil whenever the orchestrator produced a
// summary, even when err reports a storage or database failure that
// happened afterwards.
func (p *Pipeline) Run(ctx context.Context, creds []credential.Credential, trigger run.Trigger) (*Result, error) {
	// persistence outlives a cancelled run
	persistCtx := context.WithoutCancel(ctx)

	runID, recorded := p.createRun(persistCtx, len(creds), trigger)
	log := p.logger.WithField("run_id", runID.String())

	log.Info(ctx, "starting automation run", map[string]interface{}{
		"sessions": len(creds),
		"trigger":  string(trigger),
	})

	runCtx := ctx
	if p.config.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.config.TimeLimit)
		defer cancel()
	}

	summary, err := p.orchestrator.Run(runCtx, creds)
	if err != nil {
		if recorded {
			p.failRun(persistCtx, runID, err.Error())
		}
		return nil, err
	}

	result := &Result{RunID: runID, Summary: summary}
	var errs []error

	dir := path.Join(p.config.ReportDir, runID.String())
	artifacts, err := p.reports.Write(persistCtx, dir, runID.String(), summary)
	if err != nil {
		errs = append(errs, err)
	}
	result.Artifacts = artifacts

	if p.config.LogFile != "" {
		logPath, err := p.uploadLog(persistCtx, dir)
		if err != nil {
			errs = append(errs, err)
		}
		result.LogPath = logPath
	}

	if recorded {
		if err := p.recordSessions(persistCtx, runID, summary); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		if recorded {
			p.recordDetails(persistCtx, runID, summary, result)
			p.failRun(persistCtx, runID, err.Error())
		}
		return result, err
	}

	if recorded {
		p.completeRun(persistCtx, runID, summary, result)
	}

	log.Info(ctx, "automation run completed", map[string]interface{}{
		"successful": summary.SuccessCount(),
		"failed":     summary.FailCount(),
		"elapsed_ms": summary.Elapsed.Milliseconds(),
	})

	return result, nil
}

// createRun stores the pending run and marks it running. A database failure
// is logged and the run continues without history.
func (p *Pipeline) createRun(ctx context.Context, sessions int, trigger run.Trigger) (uuid.UUID, bool) {
	if p.runStore == nil {
		return uuid.New(), false
	}

	r := &run.Run{
		TargetURL:    p.config.TargetURL,
		Trigger:      trigger,
		SessionCount: sessions,
		Metadata:     p.config.Metadata,
	}
	if err := p.runStore.Create(ctx, r); err != nil {
		p.logger.Error(ctx, "failed to record run, continuing without history", map[string]interface{}{
			"error": err.Error(),
		})
		return uuid.New(), false
	}

	if err := p.runStore.Start(ctx, r.ID); err != nil {
		p.logger.Error(ctx, "failed to mark run as running", map[string]interface{}{
			"error":  err.Error(),
			"run_id": r.ID.String(),
		})
	}
	return r.ID, true
}

func (p *Pipeline) uploadLog(ctx context.Context, dir string) (string, error) {
	f, err := os.Open(p.config.LogFile)
	if err != nil {
		return "", fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	logPath := path.Join(dir, "run.log")
	if err := p.storage.Upload(ctx, logPath, f); err != nil {
		return "", fmt.Errorf("failed to upload run log: %w", err)
	}
	return logPath, nil
}

func (p *Pipeline) recordSessions(ctx context.Context, runID uuid.UUID, summary *orchestrator.Summary) error {
	sorted := summary.Sorted()
	records := make([]*run.SessionRecord, 0, len(sorted))
	for _, r := range sorted {
		records = append(records, run.NewSessionRecord(runID, r))
	}
	if err := p.runStore.AddSessions(ctx, runID, records); err != nil {
		return fmt.Errorf("failed to record sessions: %w", err)
	}
	return nil
}

// recordDetails stores the counts, artifact paths and metadata of a run
// whose sessions finished, whatever its final status.
func (p *Pipeline) recordDetails(ctx context.Context, runID uuid.UUID, summary *orchestrator.Summary, result *Result) {
	clicks, signals := 0, 0
	for _, r := range summary.Results {
		clicks += r.Clicks
		if r.SignalFound {
			signals++
		}
	}

	metadata := run.JSONMap{}
	for k, v := range p.config.Metadata {
		metadata[k] = v
	}
	metadata["clicks"] = clicks
	metadata["signals"] = signals
	metadata["elapsed_ms"] = summary.Elapsed.Milliseconds()

	setters := []run.UpdateSetter{
		run.SetCounts(summary.SuccessCount(), summary.FailCount()),
		run.SetLogPath(result.LogPath),
		run.SetMetadata(metadata),
	}
	if result.Artifacts.TextPath != "" {
		setters = append(setters, run.SetSummaryPath(result.Artifacts.TextPath))
	}

	if err := p.runStore.Update(ctx, runID, setters...); err != nil {
		p.logger.Error(ctx, "failed to update run details", map[string]interface{}{
			"error":  err.Error(),
			"run_id": runID.String(),
		})
	}
}

func (p *Pipeline) completeRun(ctx context.Context, runID uuid.UUID, summary *orchestrator.Summary, result *Result) {
	p.recordDetails(ctx, runID, summary, result)

	if err := p.runStore.Complete(ctx, runID, run.Completion{
		SuccessCount: summary.SuccessCount(),
		FailCount:    summary.FailCount(),
		SummaryPath:  result.Artifacts.TextPath,
	}); err != nil {
		p.logger.Error(ctx, "failed to mark run as completed", map[string]interface{}{
			"error":  err.Error(),
			"run_id": runID.String(),
		})
	}
}

// failRun marks a run as failed with the given reason.
func (p *Pipeline) failRun(ctx context.Context, runID uuid.UUID, reason string) {
	p.logger.Error(ctx, "automation run failed", map[string]interface{}{
		"run_id": runID.String(),
		"reason": reason,
	})

	if err := p.runStore.Fail(ctx, runID, reason); err != nil {
		// Fall back to a plain status update.
		if err2 := p.runStore.Update(ctx, runID, run.SetStatus(run.StatusFailed)); err2 != nil {
			p.logger.Error(ctx, "failed to mark run as failed", map[string]interface{}{
				"error":  err2.Error(),
				"run_id": runID.String(),
			})
		}
	}
}
