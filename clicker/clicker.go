// Package clicker implements the bounded random click loop that runs after
// login. Each iteration clicks one of a fixed set of candidate buttons and
// then looks for the cooldown message that ends the loop early.
package clicker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/hairizuanbinnoorazman/rateloop/browser"
	"github.com/hairizuanbinnoorazman/rateloop/internal/randutil"
	"github.com/hairizuanbinnoorazman/rateloop/logger"
)

const (
	DefaultOuterMin      = 26
	DefaultOuterMax      = 33
	DefaultInner         = 10
	DefaultDelayMin      = 5000 * time.Millisecond
	DefaultDelayMax      = 8000 * time.Millisecond
	DefaultSignalTimeout = 5 * time.Second

	DefaultSignalSelector = "xpath=//div[contains(text(), 'Earn more points in')]"
	DefaultSignalPattern  = `Earn more points in \d+ (hour?s?|minute?s?|second?s?)`
)

// DefaultCandidates are the two rating buttons on the rate page.
var DefaultCandidates = []string{
	"#root > div > main > div > div > div > div:nth-child(4) > button:nth-child(1)",
	"#root > div > main > div > div > div > div:nth-child(4) > button:nth-child(2)",
}

// ErrNoCandidates is returned when the controller has nothing to click.
var ErrNoCandidates = errors.New("no click candidates configured")

// Config bounds the click loop.
type Config struct {
	Candidates []string

	// The outer cap is drawn uniformly from [OuterMin, OuterMax]; each outer
	// iteration runs up to Inner clicks.
	OuterMin int
	OuterMax int
	Inner    int

	// Pause between clicks, drawn uniformly from [DelayMin, DelayMax].
	DelayMin time.Duration
	DelayMax time.Duration

	SignalSelector string
	SignalPattern  string
	SignalTimeout  time.Duration
}

// DefaultConfig returns the loop bounds used against the live site.
func DefaultConfig() Config {
	candidates := make([]string, len(DefaultCandidates))
	copy(candidates, DefaultCandidates)
	return Config{
		Candidates:     candidates,
		OuterMin:       DefaultOuterMin,
		OuterMax:       DefaultOuterMax,
		Inner:          DefaultInner,
		DelayMin:       DefaultDelayMin,
		DelayMax:       DefaultDelayMax,
		SignalSelector: DefaultSignalSelector,
		SignalPattern:  DefaultSignalPattern,
		SignalTimeout:  DefaultSignalTimeout,
	}
}

// Validate checks the configuration and compiles the signal pattern.
func (c Config) Validate() error {
	if len(c.Candidates) == 0 {
		return ErrNoCandidates
	}
	if c.OuterMin < 0 || c.OuterMax < c.OuterMin {
		return fmt.Errorf("invalid outer cap range [%d, %d]", c.OuterMin, c.OuterMax)
	}
	if c.Inner < 0 {
		return fmt.Errorf("invalid inner cap %d", c.Inner)
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("invalid delay range [%s, %s]", c.DelayMin, c.DelayMax)
	}
	if c.SignalSelector == "" {
		return errors.New("signal selector is required")
	}
	if _, err := regexp.Compile(c.SignalPattern); err != nil {
		return fmt.Errorf("invalid signal pattern: %w", err)
	}
	return nil
}

// Outcome describes how a click loop ended.
type Outcome struct {
	// Clicks counts attempted iterations, including ones whose button was missing.
	Clicks      int
	Outer       int
	Inner       int
	SignalFound bool
	SignalText  string
}

// Controller runs click loops against a page.
type Controller struct {
	config Config
	signal *regexp.Regexp
	rand   randutil.Source
	logger logger.Logger
}

// New creates a Controller. It fails when the configuration is invalid.
func New(config Config, src randutil.Source, log logger.Logger) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = randutil.New()
	}
	return &Controller{
		config: config,
		signal: regexp.MustCompile(config.SignalPattern),
		rand:   src,
		logger: log,
	}, nil
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// WithLogger returns a copy of the controller that logs to log.
func (c *Controller) WithLogger(log logger.Logger) *Controller {
	clone := *c
	clone.logger = log
	return &clone
}

// Run clicks until the signal appears or the nested cap is reached.
// Click and lookup failures are logged and never end the loop; only a
// cancelled context does.
func (c *Controller) Run(ctx context.Context, page browser.Page) (Outcome, error) {
	outer := c.rand.Intn(c.config.OuterMin, c.config.OuterMax)
	out := Outcome{Outer: outer, Inner: c.config.Inner}

	c.logger.Info(ctx, "starting click loop", map[string]interface{}{
		"outer_cap": outer,
		"inner_cap": c.config.Inner,
	})

	for o := 0; o < outer; o++ {
		for i := 0; i < c.config.Inner; i++ {
			if err := ctx.Err(); err != nil {
				return out, err
			}

			selector := c.config.Candidates[c.rand.Intn(0, len(c.config.Candidates)-1)]
			out.Clicks++

			text, found := c.attempt(ctx, page, selector, out.Clicks)
			if found {
				out.SignalFound = true
				out.SignalText = text
				c.logger.Info(ctx, "termination signal found", map[string]interface{}{
					"clicks": out.Clicks,
					"text":   text,
				})
				return out, nil
			}

			delay := c.delay()
			c.logger.Debug(ctx, "waiting before next click", map[string]interface{}{
				"delay_ms": delay.Milliseconds(),
			})
			if err := page.Sleep(ctx, delay); err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				c.logger.Warn(ctx, "wait between clicks failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}

	c.logger.Info(ctx, "click loop reached its cap", map[string]interface{}{
		"clicks": out.Clicks,
	})
	return out, nil
}

// attempt performs one click and reports the signal text when it shows up.
func (c *Controller) attempt(ctx context.Context, page browser.Page, selector string, n int) (string, bool) {
	fields := map[string]interface{}{
		"iteration": n,
		"selector":  selector,
	}

	exists, err := page.Exists(ctx, selector)
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Warn(ctx, "button lookup failed", fields)
		return "", false
	}
	if !exists {
		c.logger.Warn(ctx, "button not found", fields)
		return "", false
	}

	if err := page.Click(ctx, selector); err != nil {
		fields["error"] = err.Error()
		c.logger.Warn(ctx, "click failed", fields)
		return "", false
	}
	c.logger.Debug(ctx, "clicked button", fields)

	return c.checkSignal(ctx, page)
}

func (c *Controller) checkSignal(ctx context.Context, page browser.Page) (string, bool) {
	if err := page.WaitFor(ctx, c.config.SignalSelector, c.config.SignalTimeout); err != nil {
		c.logger.Debug(ctx, "termination signal not present", map[string]interface{}{
			"error": err.Error(),
		})
		return "", false
	}

	text, err := page.TextContent(ctx, c.config.SignalSelector)
	if err != nil {
		c.logger.Warn(ctx, "failed to read termination signal", map[string]interface{}{
			"error": err.Error(),
		})
		return "", false
	}

	match := c.signal.FindString(text)
	if match == "" {
		return "", false
	}
	return match, true
}

func (c *Controller) delay() time.Duration {
	ms := c.rand.Intn(int(c.config.DelayMin.Milliseconds()), int(c.config.DelayMax.Milliseconds()))
	return time.Duration(ms) * time.Millisecond
}
