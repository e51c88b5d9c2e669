package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightConfig configures the playwright-go driver.
type PlaywrightConfig struct {
	Launch LaunchOptions

	// ActionTimeout bounds every click, fill and text lookup.
	ActionTimeout time.Duration

	// Install downloads the driver and Chromium before launching.
	Install bool
}

// PlaywrightLauncher launches Chromium through playwright-go.
type PlaywrightLauncher struct {
	config PlaywrightConfig
}

// NewPlaywrightLauncher creates a launcher for the given configuration.
func NewPlaywrightLauncher(config PlaywrightConfig) *PlaywrightLauncher {
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = 30 * time.Second
	}
	return &PlaywrightLauncher{config: config}
}

// Launch starts the playwright driver and a Chromium process.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if l.config.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.config.Launch.Headless),
		Args:     l.config.Launch.Args,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	return &playwrightBrowser{
		pw:            pw,
		browser:       b,
		actionTimeout: l.config.ActionTimeout,
	}, nil
}

type playwrightBrowser struct {
	pw            *playwright.Playwright
	browser       playwright.Browser
	actionTimeout time.Duration
	closeOnce     sync.Once
	closeErr      error
}

func (b *playwrightBrowser) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := playwright.BrowserNewContextOptions{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		options.Viewport = &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		}
	}
	if opts.UserAgent != "" {
		options.UserAgent = playwright.String(opts.UserAgent)
	}

	bctx, err := b.browser.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	bctx.SetDefaultTimeout(float64(b.actionTimeout.Milliseconds()))

	return &playwrightContext{context: bctx}, nil
}

func (b *playwrightBrowser) Close() error {
	b.closeOnce.Do(func() {
		if err := b.browser.Close(); err != nil {
			b.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		if err := b.pw.Stop(); err != nil && b.closeErr == nil {
			b.closeErr = fmt.Errorf("failed to stop playwright: %w", err)
		}
	})
	return b.closeErr
}

type playwrightContext struct {
	context playwright.BrowserContext
}

func (c *playwrightContext) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := c.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (c *playwrightContext) Close() error {
	return c.context.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Click(); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Fill(value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	count, err := p.page.Locator(selector).Count()
	if err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return count > 0, nil
}

func (p *playwrightPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) TextContent(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := p.page.Locator(selector).First().TextContent()
	if err != nil {
		return "", fmt.Errorf("text content of %s: %w", selector, err)
	}
	return text, nil
}

// Sleep waits on the Go side so the wait can be cancelled through ctx.
func (p *playwrightPage) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
