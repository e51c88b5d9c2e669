package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/run"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
	"github.com/hairizuanbinnoorazman/rateloop/testutil"
)

type testEnv struct {
	db      *gorm.DB
	store   storage.BlobStorage
	log     *logger.TestLogger
	router  http.Handler
	runs    []*run.Run
	summary string
}

func setupTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &run.Run{}, &run.SessionRecord{})

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	log := logger.NewTestLogger()

	base := time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC)
	runs := []*run.Run{
		{TargetURL: "https://www.eggg.co.uk", Status: run.StatusCompleted, SessionCount: 2, SuccessCount: 1, FailCount: 1, CreatedAt: base},
		{TargetURL: "https://www.eggg.co.uk", Status: run.StatusFailed, Error: "launch browser: boom", CreatedAt: base.Add(time.Hour)},
		{TargetURL: "https://www.eggg.co.uk", Status: run.StatusRunning, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range runs {
		testutil.CreateFixtures(t, db, r)
	}

	summaryPath := "runs/" + runs[0].ID.String() + "/summary_2024-05-06T07-00-00.txt"
	summary := "==== AUTOMATION REPORT SUMMARY ====\nTotal Sessions: 2"
	require.NoError(t, storage.Put(context.Background(), blobs, summaryPath, []byte(summary)))
	require.NoError(t, storage.Put(context.Background(), blobs, "runs/"+runs[0].ID.String()+"/run.log", []byte("log")))
	require.NoError(t, db.Model(runs[0]).Update("summary_path", summaryPath).Error)
	require.NoError(t, db.Model(runs[1]).Update("summary_path", "runs/"+runs[1].ID.String()+"/summary_missing.txt").Error)

	testutil.CreateFixtures(t, db,
		&run.SessionRecord{RunID: runs[0].ID, SessionNumber: 2, Username: "b@example.com", FinalState: "failed", ReachedState: "agreed"},
		&run.SessionRecord{RunID: runs[0].ID, SessionNumber: 1, Username: "a@example.com", Success: true, FinalState: "completed", ReachedState: "completed"},
	)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("rateloop_clicks_total 0\n"))
	})

	return &testEnv{
		db:    db,
		store: blobs,
		log:   log,
		router: NewRouter(cfg, Deps{
			DB:      db,
			Runs:    run.NewMySQLStore(db, log),
			Storage: blobs,
			Metrics: metrics,
			Logger:  log,
		}),
		runs:    runs,
		summary: summary,
	}
}

func (e *testEnv) get(t *testing.T, target string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type runsPage struct {
	Items  []run.Run `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, Config{})

	rec := env.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, HealthResponse{Status: "healthy", Database: "ok"}, resp)

	rec = httptest.NewRecorder()
	NewHealthHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunHandler_List(t *testing.T) {
	env := setupTestEnv(t, Config{})

	tests := []struct {
		name       string
		target     string
		wantLen    int
		wantLimit  int
		wantOffset int
		wantFirst  int
	}{
		{name: "defaults", target: "/api/v1/runs", wantLen: 3, wantLimit: 20, wantFirst: 2},
		{name: "limit", target: "/api/v1/runs?limit=2", wantLen: 2, wantLimit: 2, wantFirst: 2},
		{name: "offset", target: "/api/v1/runs?limit=2&offset=2", wantLen: 1, wantLimit: 2, wantOffset: 2, wantFirst: 0},
		{name: "invalid values use defaults", target: "/api/v1/runs?limit=500&offset=-1", wantLen: 3, wantLimit: 20, wantFirst: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(t, tt.target)
			require.Equal(t, http.StatusOK, rec.Code)

			var page runsPage
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
			assert.Len(t, page.Items, tt.wantLen)
			assert.Equal(t, 3, page.Total)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.wantOffset, page.Offset)
			assert.Equal(t, env.runs[tt.wantFirst].ID, page.Items[0].ID)
		})
	}
}

func TestRunHandler_GetByID(t *testing.T) {
	env := setupTestEnv(t, Config{})

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "existing run", id: env.runs[1].ID.String(), wantStatus: http.StatusOK},
		{name: "unknown run", id: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "invalid id", id: "not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(t, "/api/v1/runs/"+tt.id)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				var resp ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.NotEmpty(t, resp.Error)
				return
			}

			var got run.Run
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, run.StatusFailed, got.Status)
			assert.Equal(t, "launch browser: boom", got.Error)
		})
	}
}

func TestRunHandler_ListSessions(t *testing.T) {
	env := setupTestEnv(t, Config{})

	rec := env.get(t, "/api/v1/runs/"+env.runs[0].ID.String()+"/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items []run.SessionRecord `json:"items"`
		Total int                 `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Items[0].SessionNumber)
	assert.True(t, page.Items[0].Success)
	assert.Equal(t, "agreed", page.Items[1].ReachedState)
}

func TestRunHandler_Summary(t *testing.T) {
	env := setupTestEnv(t, Config{})

	rec := env.get(t, "/api/v1/runs/"+env.runs[0].ID.String()+"/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, env.summary, rec.Body.String())

	// artifact recorded but missing from storage
	rec = env.get(t, "/api/v1/runs/"+env.runs[1].ID.String()+"/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// no summary recorded
	rec = env.get(t, "/api/v1/runs/"+env.runs[2].ID.String()+"/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandler_Artifacts(t *testing.T) {
	env := setupTestEnv(t, Config{})

	rec := env.get(t, "/api/v1/runs/"+env.runs[0].ID.String()+"/artifacts")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items []Artifact `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 2)
	prefix := "runs/" + env.runs[0].ID.String() + "/"
	assert.Equal(t, prefix+"run.log", page.Items[0].Path)
	assert.Equal(t, prefix+"summary_2024-05-06T07-00-00.txt", page.Items[1].Path)
	for _, a := range page.Items {
		assert.True(t, strings.HasPrefix(a.URL, "file://"), a.URL)
	}

	rec = env.get(t, "/api/v1/runs/"+env.runs[2].ID.String()+"/artifacts")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Empty(t, page.Items)
}

func TestBasicAuth(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	env := setupTestEnv(t, Config{Username: "admin", PasswordHash: hash})

	tests := []struct {
		name       string
		target     string
		auth       []string
		wantStatus int
	}{
		{name: "health is public", target: "/health", wantStatus: http.StatusOK},
		{name: "metrics is public", target: "/metrics", wantStatus: http.StatusOK},
		{name: "api without credentials", target: "/api/v1/runs", wantStatus: http.StatusUnauthorized},
		{name: "api with wrong password", target: "/api/v1/runs", auth: []string{"admin", "battery staple"}, wantStatus: http.StatusUnauthorized},
		{name: "api with wrong username", target: "/api/v1/runs", auth: []string{"root", "correct horse"}, wantStatus: http.StatusUnauthorized},
		{name: "api with credentials", target: "/api/v1/runs", auth: []string{"admin", "correct horse"}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(t, tt.target, tt.auth...)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="rateloop"`, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}

	assert.Len(t, env.log.Messages("warn"), 2)
}

func TestMetricsRoute(t *testing.T) {
	env := setupTestEnv(t, Config{})

	rec := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rateloop_clicks_total")
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("long enough")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8080", Config{Host: "0.0.0.0", Port: 8080}.Addr())
}
