// Package session runs the scripted login and click loop for one account.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/rateloop/browser"
	"github.com/hairizuanbinnoorazman/rateloop/clicker"
	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/internal/randutil"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/retry"
)

const (
	DefaultBaseURL           = "https://www.eggg.co.uk"
	DefaultRatePath          = "/rate"
	DefaultNavigationTimeout = 30 * time.Second
)

// Selectors locate the controls of the login flow.
type Selectors struct {
	Agree    string
	Join     string
	Login    string
	Username string
	Password string
	Continue string
}

// DefaultSelectors returns the selectors of the live site.
func DefaultSelectors() Selectors {
	return Selectors{
		Agree:    `text="AGREE"`,
		Join:     `text="Join"`,
		Login:    `text="Already a member? Login"`,
		Username: `input[autocomplete="username"]`,
		Password: `input[autocomplete="current-password"]`,
		Continue: `text="Continue"`,
	}
}

// Wait is an inclusive range of whole seconds.
type Wait struct {
	MinSeconds int
	MaxSeconds int
}

// Site describes the target website and the pacing of the script.
type Site struct {
	BaseURL           string
	RatePath          string
	NavigationTimeout time.Duration
	Selectors         Selectors
	PostLoginWait     Wait
	PreLoopWait       Wait
}

// DefaultSite returns the configuration for the live site.
func DefaultSite() Site {
	return Site{
		BaseURL:           DefaultBaseURL,
		RatePath:          DefaultRatePath,
		NavigationTimeout: DefaultNavigationTimeout,
		Selectors:         DefaultSelectors(),
		PostLoginWait:     Wait{MinSeconds: 1, MaxSeconds: 10},
		PreLoopWait:       Wait{MinSeconds: 1, MaxSeconds: 5},
	}
}

// Validate checks the site configuration.
func (s Site) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base url %q", s.BaseURL)
	}
	if s.NavigationTimeout <= 0 {
		return errors.New("navigation timeout must be positive")
	}
	for _, w := range []Wait{s.PostLoginWait, s.PreLoopWait} {
		if w.MinSeconds < 0 || w.MaxSeconds < w.MinSeconds {
			return fmt.Errorf("invalid wait range [%d, %d]", w.MinSeconds, w.MaxSeconds)
		}
	}
	return nil
}

// RateURL returns the address of the page holding the click loop.
func (s Site) RateURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(s.RatePath, "/")
}

// step is one transition of the script. Retried steps go through the
// retry wrapper; the rest run once.
type step struct {
	name    string
	reaches State
	retried bool
	run     func(ctx context.Context, page browser.Page) error
}

// Runner executes the session script.
type Runner struct {
	site    Site
	retrier *retry.Retrier
	clicker *clicker.Controller
	rand    randutil.Source
	logger  logger.Logger
	now     func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(site Site, retrier *retry.Retrier, clicks *clicker.Controller, src randutil.Source, log logger.Logger) *Runner {
	if src == nil {
		src = randutil.New()
	}
	return &Runner{
		site:    site,
		retrier: retrier,
		clicker: clicks,
		rand:    src,
		logger:  log,
		now:     time.Now,
	}
}

// Run logs in with cred inside bctx and runs the click loop. It never
// returns an error: every failure is reported through the Result.
func (r *Runner) Run(ctx context.Context, id int, cred credential.Credential, bctx browser.Context) Result {
	log := r.logger.WithFields(map[string]interface{}{
		"session":  id,
		"username": cred.Username,
	})
	result := Result{
		ID:        id,
		Username:  cred.Username,
		State:     StateStart,
		Reached:   StateStart,
		StartedAt: r.now(),
	}

	fail := func(err error) Result {
		result.Success = false
		result.State = StateFailed
		result.Error = err.Error()
		result.CompletedAt = r.now()
		log.Error(ctx, "session failed", map[string]interface{}{
			"state": string(result.Reached),
			"error": err.Error(),
		})
		return result
	}

	log.Info(ctx, "starting session", nil)

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to open page: %w", err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn(ctx, "failed to close page", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	result.Reached = StatePageOpened

	retrier := r.retrier.WithLogger(log)
	for _, s := range r.script(cred, log) {
		var err error
		if s.retried {
			err = retrier.Do(ctx, s.name, func(ctx context.Context) error {
				return s.run(ctx, page)
			})
		} else {
			err = s.run(ctx, page)
		}
		if err != nil {
			return fail(fmt.Errorf("%s: %w", s.name, err))
		}
		result.Reached = s.reaches
		log.Debug(ctx, "session step done", map[string]interface{}{
			"state": string(s.reaches),
		})
	}

	result.Reached = StateClickLoopRunning
	outcome, err := r.clicker.WithLogger(log).Run(ctx, page)
	result.Clicks = outcome.Clicks
	result.SignalFound = outcome.SignalFound
	if err != nil {
		return fail(fmt.Errorf("click loop: %w", err))
	}

	result.Success = true
	result.State = StateCompleted
	result.Reached = StateCompleted
	result.CompletedAt = r.now()
	log.Info(ctx, "session completed", map[string]interface{}{
		"clicks":       outcome.Clicks,
		"signal_found": outcome.SignalFound,
		"duration_ms":  result.Duration().Milliseconds(),
	})
	return result
}

func (r *Runner) script(cred credential.Credential, log logger.Logger) []step {
	sel := r.site.Selectors
	click := func(selector string) func(ctx context.Context, page browser.Page) error {
		return func(ctx context.Context, page browser.Page) error {
			return page.Click(ctx, selector)
		}
	}
	navigate := func(target string) func(ctx context.Context, page browser.Page) error {
		return func(ctx context.Context, page browser.Page) error {
			return page.Navigate(ctx, target, r.site.NavigationTimeout)
		}
	}
	wait := func(name string, w Wait) func(ctx context.Context, page browser.Page) error {
		return func(ctx context.Context, page browser.Page) error {
			d := time.Duration(r.rand.Intn(w.MinSeconds, w.MaxSeconds)) * time.Second
			log.Info(ctx, "waiting", map[string]interface{}{
				"wait":    name,
				"seconds": d.Seconds(),
			})
			return page.Sleep(ctx, d)
		}
	}

	return []step{
		{name: "navigate to home", reaches: StateNavigatedHome, retried: true, run: navigate(r.site.BaseURL)},
		{name: "click agree", reaches: StateAgreed, retried: true, run: click(sel.Agree)},
		{name: "click join", reaches: StateJoined, retried: true, run: click(sel.Join)},
		{name: "open login form", reaches: StateLoginFormOpened, retried: true, run: click(sel.Login)},
		{name: "fill credentials", reaches: StateCredentialsFilled, retried: true, run: func(ctx context.Context, page browser.Page) error {
			if err := page.Fill(ctx, sel.Username, cred.Username); err != nil {
				return err
			}
			return page.Fill(ctx, sel.Password, cred.Password)
		}},
		{name: "submit login", reaches: StateLoggedIn, retried: true, run: click(sel.Continue)},
		{name: "post-login wait", reaches: StatePostLoginWait, run: wait("post-login", r.site.PostLoginWait)},
		{name: "navigate to rate page", reaches: StateNavigatedToTargetPage, retried: true, run: navigate(r.site.RateURL())},
		{name: "pre-loop wait", reaches: StatePreLoopWait, run: wait("pre-loop", r.site.PreLoopWait)},
	}
}
