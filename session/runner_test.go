package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/rateloop/browser"
	"github.com/hairizuanbinnoorazman/rateloop/clicker"
	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/internal/randutil"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCred = credential.Credential{ID: "user1", Username: "u1@example.com", Password: "pw1"}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestRunner(t *testing.T, maxRetries int, log logger.Logger) *Runner {
	t.Helper()

	cfg := clicker.DefaultConfig()
	cfg.OuterMin, cfg.OuterMax, cfg.Inner = 1, 1, 2
	clicks, err := clicker.New(cfg, randutil.Min{}, log)
	require.NoError(t, err)

	retrier := retry.New(retry.Policy{MaxRetries: maxRetries, BaseDelay: time.Second}, log, retry.WithSleeper(noSleep))
	return NewRunner(DefaultSite(), retrier, clicks, randutil.Min{}, log)
}

func newContext(t *testing.T, page *browser.FakePage) browser.Context {
	t.Helper()
	b := &browser.FakeBrowser{PageFactory: func(int) *browser.FakePage { return page }}
	bctx, err := b.NewContext(context.Background(), browser.DefaultContextOptions())
	require.NoError(t, err)
	return bctx
}

func TestRunner_ThirdOperationAlwaysFails(t *testing.T) {
	join := DefaultSelectors().Join
	page := browser.NewFakePage()
	page.ActionHook = func(call browser.Call) error {
		if call.Op == browser.OpClick && call.Selector == join {
			return errors.New("timeout 30000ms exceeded")
		}
		return nil
	}
	log := logger.NewTestLogger()
	runner := newTestRunner(t, 3, log)

	result := runner.Run(context.Background(), 7, testCred, newContext(t, page))

	assert.False(t, result.Success)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StateAgreed, result.Reached)
	assert.Equal(t, 4, page.Count(browser.OpClick, join))
	assert.Contains(t, result.Error, "click join")

	// Nothing after the failing step runs.
	assert.Zero(t, page.Count(browser.OpClick, DefaultSelectors().Login))
	assert.Zero(t, page.Count(browser.OpFill, ""))
	assert.True(t, page.Closed())
	assert.Contains(t, log.Messages("error"), "session failed")
}

func TestRunner_Success(t *testing.T) {
	page := browser.NewFakePage()
	log := logger.NewTestLogger()
	runner := newTestRunner(t, 3, log)

	result := runner.Run(context.Background(), 1, testCred, newContext(t, page))

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, result.ID)
	assert.Equal(t, "u1@example.com", result.Username)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, StateCompleted, result.Reached)
	assert.Equal(t, 2, result.Clicks)
	assert.False(t, result.SignalFound)
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
	assert.True(t, page.Closed())

	sel := DefaultSelectors()
	var script []browser.Call
	for _, c := range page.Calls() {
		if c.Op == browser.OpExists || c.Op == browser.OpWaitFor || c.Op == browser.OpText {
			continue
		}
		script = append(script, c)
	}
	require.GreaterOrEqual(t, len(script), 10)
	assert.Equal(t, []browser.Call{
		{Op: browser.OpNavigate, Value: DefaultBaseURL, Duration: DefaultNavigationTimeout},
		{Op: browser.OpClick, Selector: sel.Agree},
		{Op: browser.OpClick, Selector: sel.Join},
		{Op: browser.OpClick, Selector: sel.Login},
		{Op: browser.OpFill, Selector: sel.Username, Value: "u1@example.com"},
		{Op: browser.OpFill, Selector: sel.Password, Value: "pw1"},
		{Op: browser.OpClick, Selector: sel.Continue},
		{Op: browser.OpSleep, Duration: time.Second},
		{Op: browser.OpNavigate, Value: "https://www.eggg.co.uk/rate", Duration: DefaultNavigationTimeout},
		{Op: browser.OpSleep, Duration: time.Second},
	}, script[:10])
}

func TestRunner_TransientFailureRecovers(t *testing.T) {
	sel := DefaultSelectors()
	page := browser.NewFakePage()
	page.ActionHook = func(call browser.Call) error {
		// Password field is slow to render on the first two attempts.
		if call.Op == browser.OpFill && call.Selector == sel.Password && page.Count(browser.OpFill, sel.Password) <= 2 {
			return browser.ErrElementNotFound
		}
		return nil
	}
	log := logger.NewTestLogger()
	runner := newTestRunner(t, 3, log)

	result := runner.Run(context.Background(), 2, testCred, newContext(t, page))

	require.True(t, result.Success, result.Error)
	// Both fields are refilled on every attempt.
	assert.Equal(t, 3, page.Count(browser.OpFill, sel.Username))
	assert.Equal(t, 3, page.Count(browser.OpFill, sel.Password))
	assert.Len(t, log.Messages("warn"), 2)
}

func TestRunner_WaitsAreNotRetried(t *testing.T) {
	page := browser.NewFakePage()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	page.ActionHook = func(call browser.Call) error {
		if call.Op == browser.OpClick && call.Selector == DefaultSelectors().Continue {
			cancel()
		}
		return nil
	}
	runner := newTestRunner(t, 3, logger.NewTestLogger())

	result := runner.Run(ctx, 3, testCred, newContext(t, page))

	assert.False(t, result.Success)
	assert.Equal(t, StateLoggedIn, result.Reached)
	assert.Empty(t, page.Slept())
	assert.Contains(t, result.Error, "post-login wait")
}

func TestRunner_PageOpenFailure(t *testing.T) {
	page := browser.NewFakePage()
	bctx := newContext(t, page)
	require.NoError(t, bctx.Close())

	result := newTestRunner(t, 3, logger.NewTestLogger()).Run(context.Background(), 4, testCred, bctx)

	assert.False(t, result.Success)
	assert.Equal(t, StateStart, result.Reached)
	assert.Empty(t, page.Calls())
}

func TestSite(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(s *Site)
		wantErr bool
		wantURL string
	}{
		{name: "default", modify: func(s *Site) {}, wantURL: "https://www.eggg.co.uk/rate"},
		{name: "trailing slash", modify: func(s *Site) { s.BaseURL = "http://localhost:8080/" }, wantURL: "http://localhost:8080/rate"},
		{name: "relative url", modify: func(s *Site) { s.BaseURL = "/rate" }, wantErr: true},
		{name: "zero timeout", modify: func(s *Site) { s.NavigationTimeout = 0 }, wantErr: true},
		{name: "inverted wait", modify: func(s *Site) { s.PreLoopWait = Wait{MinSeconds: 5, MaxSeconds: 1} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := DefaultSite()
			tt.modify(&site)
			err := site.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, site.RateURL())
		})
	}
}
