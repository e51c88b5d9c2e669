// Package orchestrator fans sessions out over a shared browser and joins
// them into a single summary.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hairizuanbinnoorazman/rateloop/browser"
	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/session"
)

// SessionRunner runs one session inside its own browser context.
type SessionRunner interface {
	Run(ctx context.Context, id int, cred credential.Credential, bctx browser.Context) session.Result
}

// Recorder observes session and run outcomes, typically for metrics.
type Recorder interface {
	SessionFinished(result session.Result)
	RunFinished(elapsed time.Duration)
}

// Config tunes the fan-out.
type Config struct {
	// MaxConcurrent bounds simultaneously running sessions. 0 means no bound.
	MaxConcurrent int

	// Context configures every isolated browser context.
	Context browser.ContextOptions
}

// DefaultConfig runs every session at once in a desktop sized context.
func DefaultConfig() Config {
	return Config{
		Context: browser.DefaultContextOptions(),
	}
}

// Summary aggregates one run.
type Summary struct {
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Elapsed   time.Duration    `json:"elapsed"`
	Results   []session.Result `json:"results"`
}

// Total returns the number of sessions.
func (s *Summary) Total() int {
	return len(s.Results)
}

// SuccessCount returns the number of successful sessions.
func (s *Summary) SuccessCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// FailCount returns the number of failed sessions.
func (s *Summary) FailCount() int {
	return len(s.Results) - s.SuccessCount()
}

// ByID returns the result of a session.
func (s *Summary) ByID(id int) (session.Result, bool) {
	for _, r := range s.Results {
		if r.ID == id {
			return r, true
		}
	}
	return session.Result{}, false
}

// Sorted returns results ordered by session id.
func (s *Summary) Sorted() []session.Result {
	out := make([]session.Result, len(s.Results))
	copy(out, s.Results)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder reports outcomes to rec.
func WithRecorder(rec Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = rec
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator runs one session per credential against a single browser.
type Orchestrator struct {
	launcher browser.Launcher
	runner   SessionRunner
	config   Config
	recorder Recorder
	logger   logger.Logger
	now      func() time.Time
}

// New creates an Orchestrator.
func New(launcher browser.Launcher, runner SessionRunner, config Config, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		launcher: launcher,
		runner:   runner,
		config:   config,
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type task struct {
	id   int
	cred credential.Credential
}

// Run launches the browser, runs every session concurrently and waits for
// all of them before closing the browser. Session failures never cancel
// siblings and are reported in the summary, not as an error.
func (o *Orchestrator) Run(ctx context.Context, creds []credential.Credential) (*Summary, error) {
	if len(creds) == 0 {
		return nil, credential.ErrNoCredentials
	}

	// Identifiers follow input order and are fixed before anything runs.
	tasks := make([]task, len(creds))
	for i, cred := range creds {
		tasks[i] = task{id: i + 1, cred: cred}
	}

	startedAt := o.now()
	o.logger.Info(ctx, "launching sessions", map[string]interface{}{
		"sessions":       len(tasks),
		"max_concurrent": o.config.MaxConcurrent,
	})

	b, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	results := session.NewResultStore()
	var g errgroup.Group
	if o.config.MaxConcurrent > 0 {
		g.SetLimit(o.config.MaxConcurrent)
	}
	for _, t := range tasks {
		g.Go(func() error {
			r := o.runSession(ctx, b, t)
			if !results.Add(r) {
				o.logger.Warn(ctx, "duplicate session result dropped", map[string]interface{}{
					"session": r.ID,
				})
				return nil
			}
			if o.recorder != nil {
				o.recorder.SessionFinished(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := b.Close(); err != nil {
		o.logger.Warn(ctx, "failed to close browser", map[string]interface{}{
			"error": err.Error(),
		})
	}

	endedAt := o.now()
	summary := &Summary{
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Elapsed:   endedAt.Sub(startedAt),
		Results:   results.All(),
	}
	if o.recorder != nil {
		o.recorder.RunFinished(summary.Elapsed)
	}

	o.logger.Info(ctx, "all sessions finished", map[string]interface{}{
		"total":      summary.Total(),
		"successful": summary.SuccessCount(),
		"failed":     summary.FailCount(),
		"elapsed_ms": summary.Elapsed.Milliseconds(),
	})
	return summary, nil
}

// runSession owns the browser context of one session and turns anything
// the runner does not handle into a failed result.
func (o *Orchestrator) runSession(ctx context.Context, b browser.Browser, t task) (result session.Result) {
	log := o.logger.WithField("session", t.id)
	startedAt := o.now()

	failed := func(msg string) session.Result {
		log.Error(ctx, "session task failed", map[string]interface{}{
			"error": msg,
		})
		return session.Result{
			ID:          t.id,
			Username:    t.cred.Username,
			State:       session.StateFailed,
			Reached:     session.StateStart,
			Error:       msg,
			StartedAt:   startedAt,
			CompletedAt: o.now(),
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error(ctx, "session panicked", map[string]interface{}{
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			})
			result = failed(fmt.Sprintf("panic: %v", rec))
		}
	}()

	bctx, err := b.NewContext(ctx, o.config.Context)
	if err != nil {
		return failed(fmt.Sprintf("failed to create browser context: %v", err))
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			log.Warn(ctx, "failed to close browser context", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	result = o.runner.Run(ctx, t.id, t.cred, bctx)
	result.ID = t.id
	result.Username = t.cred.Username
	return result
}
