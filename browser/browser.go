// Package browser describes the browser automation surface the session
// runner depends on and provides a playwright-go backed implementation.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")

	// ErrClosed is returned when a closed browser, context or page is used.
	ErrClosed = errors.New("browser resource closed")
)

const (
	// DefaultViewportWidth is the viewport width of new contexts.
	DefaultViewportWidth = 1280

	// DefaultViewportHeight is the viewport height of new contexts.
	DefaultViewportHeight = 800

	// DefaultUserAgent is the user agent reported by new contexts.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/98.0.4758.102 Safari/537.36"
)

// LaunchOptions configures the browser process.
type LaunchOptions struct {
	Headless bool
	Args     []string
}

// DefaultLaunchOptions returns headless Chromium with the shared memory
// workaround needed in containers.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{
		Headless: true,
		Args:     []string{"--disable-dev-shm-usage"},
	}
}

// ContextOptions configures an isolated browsing context.
type ContextOptions struct {
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
}

// DefaultContextOptions returns a desktop sized context.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
		UserAgent:      DefaultUserAgent,
	}
}

// Launcher starts a browser process.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser process shared by every session of a run.
type Browser interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context owned by a single session.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	// Navigate loads url, failing if it takes longer than timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Fill types value into the input matching selector.
	Fill(ctx context.Context, selector, value string) error

	// Exists reports whether selector currently matches an element.
	Exists(ctx context.Context, selector string) (bool, error)

	// WaitFor blocks until selector matches an element or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// TextContent returns the text content of the element matching selector.
	TextContent(ctx context.Context, selector string) (string, error)

	// Sleep pauses the page's script for d.
	Sleep(ctx context.Context, d time.Duration) error

	Close() error
}
