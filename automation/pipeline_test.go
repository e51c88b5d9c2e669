package automation

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/orchestrator"
	"github.com/hairizuanbinnoorazman/rateloop/report"
	"github.com/hairizuanbinnoorazman/rateloop/run"
	"github.com/hairizuanbinnoorazman/rateloop/session"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
	"github.com/hairizuanbinnoorazman/rateloop/testutil"
)

type stubOrchestrator struct {
	summary  *orchestrator.Summary
	err      error
	gotCtx   context.Context
	gotCreds []credential.Credential
}

func (s *stubOrchestrator) Run(ctx context.Context, creds []credential.Credential) (*orchestrator.Summary, error) {
	s.gotCtx = ctx
	s.gotCreds = creds
	return s.summary, s.err
}

// failingStorage rejects every upload.
type failingStorage struct {
	storage.BlobStorage
}

func (failingStorage) Upload(ctx context.Context, path string, reader io.Reader) error {
	return errors.New("bucket unavailable")
}

func testCreds() []credential.Credential {
	return []credential.Credential{
		{ID: "user1", Username: "a@example.com", Password: "p1"},
		{ID: "user2", Username: "b@example.com", Password: "p2"},
	}
}

func testSummary() *orchestrator.Summary {
	start := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return &orchestrator.Summary{
		StartedAt: start,
		EndedAt:   start.Add(2 * time.Minute),
		Elapsed:   2 * time.Minute,
		Results: []session.Result{
			{ID: 2, Username: "b@example.com", State: session.StateFailed, Reached: session.StateAgreed, Error: "click join: timeout", StartedAt: start, CompletedAt: start.Add(time.Minute)},
			{ID: 1, Username: "a@example.com", Success: true, State: session.StateCompleted, Reached: session.StateCompleted, Clicks: 15, SignalFound: true, StartedAt: start, CompletedAt: start.Add(2 * time.Minute)},
		},
	}
}

type pipelineEnv struct {
	store    run.Store
	blobs    *storage.LocalStorage
	log      *logger.TestLogger
	orch     *stubOrchestrator
	pipeline *Pipeline
}

func setupPipeline(t *testing.T, cfg Config, withHistory bool) *pipelineEnv {
	t.Helper()

	log := logger.NewTestLogger()
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	var store run.Store
	if withHistory {
		db := testutil.SetupTestDB(t)
		testutil.AutoMigrate(t, db, &run.Run{}, &run.SessionRecord{})
		store = run.NewMySQLStore(db, log)
	}

	orch := &stubOrchestrator{summary: testSummary()}
	return &pipelineEnv{
		store:    store,
		blobs:    blobs,
		log:      log,
		orch:     orch,
		pipeline: NewPipeline(cfg, orch, store, blobs, log),
	}
}

func TestPipeline_Run(t *testing.T) {
	logFile := testutil.WriteFile(t, "run.log", "level=info msg=\"session completed\"\n")
	env := setupPipeline(t, Config{
		TargetURL: "https://www.eggg.co.uk/rate",
		LogFile:   logFile,
		Metadata:  run.JSONMap{"version": "1.2.3"},
	}, true)
	ctx := context.Background()

	result, err := env.pipeline.Run(ctx, testCreds(), run.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, testCreds(), env.orch.gotCreds)

	dir := "runs/" + result.RunID.String()
	assert.Equal(t, dir+"/summary_2024-05-06T07-08-09.txt", result.Artifacts.TextPath)
	assert.Equal(t, dir+"/run.log", result.LogPath)

	text, err := storage.Get(ctx, env.blobs, result.Artifacts.TextPath)
	require.NoError(t, err)
	assert.Equal(t, report.Text(testSummary()), text)

	logData, err := storage.Get(ctx, env.blobs, result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "session completed")

	r, err := env.store.GetByID(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, r.Status)
	assert.Equal(t, run.TriggerManual, r.Trigger)
	assert.Equal(t, "https://www.eggg.co.uk/rate", r.TargetURL)
	assert.Equal(t, 2, r.SessionCount)
	assert.Equal(t, 1, r.SuccessCount)
	assert.Equal(t, 1, r.FailCount)
	assert.Equal(t, result.Artifacts.TextPath, r.SummaryPath)
	assert.Equal(t, result.LogPath, r.LogPath)
	assert.NotNil(t, r.StartedAt)
	assert.NotNil(t, r.CompletedAt)
	assert.Equal(t, "1.2.3", r.Metadata["version"])
	assert.Equal(t, float64(15), r.Metadata["clicks"])
	assert.Equal(t, float64(1), r.Metadata["signals"])

	sessions, err := env.store.ListSessions(ctx, result.RunID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 1, sessions[0].SessionNumber)
	assert.True(t, sessions[0].Success)
	assert.Equal(t, string(session.StateAgreed), sessions[1].ReachedState)
	assert.Equal(t, "click join: timeout", sessions[1].Error)

	assert.Contains(t, env.log.Messages("info"), "automation run completed")
}

func TestPipeline_OrchestratorError(t *testing.T) {
	env := setupPipeline(t, Config{TargetURL: "https://www.eggg.co.uk/rate"}, true)
	env.orch.summary = nil
	env.orch.err = errors.New("launch browser: executable missing")
	ctx := context.Background()

	result, err := env.pipeline.Run(ctx, testCreds(), run.TriggerSchedule)
	require.Error(t, err)
	assert.Nil(t, result)

	runs, err := env.store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.StatusFailed, runs[0].Status)
	assert.Equal(t, run.TriggerSchedule, runs[0].Trigger)
	assert.Equal(t, "launch browser: executable missing", runs[0].Error)

	paths, err := env.blobs.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestPipeline_StorageFailureKeepsSummary(t *testing.T) {
	env := setupPipeline(t, Config{TargetURL: "https://www.eggg.co.uk/rate"}, true)
	env.pipeline = NewPipeline(Config{TargetURL: "https://www.eggg.co.uk/rate"}, env.orch, env.store, failingStorage{env.blobs}, env.log)
	ctx := context.Background()

	result, err := env.pipeline.Run(ctx, testCreds(), run.TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
	require.NotNil(t, result)
	require.NotNil(t, result.Summary)
	assert.Equal(t, 1, result.Summary.SuccessCount())

	r, err := env.store.GetByID(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, r.Status)
	assert.Contains(t, r.Error, "bucket unavailable")
	assert.Equal(t, 1, r.SuccessCount)
	assert.Equal(t, 1, r.FailCount)
	assert.Empty(t, r.SummaryPath)
	assert.NotNil(t, r.CompletedAt)

	// sessions are still recorded
	sessions, err := env.store.ListSessions(ctx, result.RunID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestPipeline_MissingLogFile(t *testing.T) {
	env := setupPipeline(t, Config{
		TargetURL: "https://www.eggg.co.uk/rate",
		LogFile:   filepath.Join(t.TempDir(), "missing.log"),
	}, true)

	ctx := context.Background()

	result, err := env.pipeline.Run(ctx, testCreds(), run.TriggerManual)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Artifacts.TextPath)
	assert.Empty(t, result.LogPath)

	// the failed run still points at the summary that was written
	r, err := env.store.GetByID(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, r.Status)
	assert.Equal(t, 1, r.SuccessCount)
	assert.Equal(t, 1, r.FailCount)
	assert.Equal(t, result.Artifacts.TextPath, r.SummaryPath)
	assert.Empty(t, r.LogPath)
	assert.Equal(t, float64(15), r.Metadata["clicks"])

	exists, err := env.blobs.Exists(ctx, r.SummaryPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPipeline_WithoutHistory(t *testing.T) {
	env := setupPipeline(t, Config{}, false)
	ctx := context.Background()

	result, err := env.pipeline.Run(ctx, testCreds(), run.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEqual(t, uuid.Nil, result.RunID)

	exists, err := env.blobs.Exists(ctx, result.Artifacts.JSONPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPipeline_TimeLimit(t *testing.T) {
	tests := []struct {
		name         string
		limit        time.Duration
		wantDeadline bool
	}{
		{name: "no limit", limit: 0},
		{name: "limit", limit: time.Hour, wantDeadline: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupPipeline(t, Config{TimeLimit: tt.limit}, false)
			_, err := env.pipeline.Run(context.Background(), testCreds(), run.TriggerManual)
			require.NoError(t, err)

			_, ok := env.orch.gotCtx.Deadline()
			assert.Equal(t, tt.wantDeadline, ok)
		})
	}
}

func TestPipeline_CancelledRunStillPersists(t *testing.T) {
	env := setupPipeline(t, Config{TargetURL: "https://www.eggg.co.uk/rate"}, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := env.pipeline.Run(ctx, testCreds(), run.TriggerManual)
	require.NoError(t, err)

	r, err := env.store.GetByID(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, r.Status)

	_, err = os.Stat(filepath.Join(env.blobs.BaseDir(), filepath.FromSlash(result.Artifacts.TextPath)))
	assert.NoError(t, err)
}
