package browser

import (
	"context"
	"sync"
	"time"
)

// Op names a recorded page operation.
type Op string

const (
	OpNavigate Op = "navigate"
	OpClick    Op = "click"
	OpFill     Op = "fill"
	OpExists   Op = "exists"
	OpWaitFor  Op = "wait_for"
	OpText     Op = "text"
	OpSleep    Op = "sleep"
)

// Call is one recorded page operation.
type Call struct {
	Op       Op
	Selector string
	Value    string
	Duration time.Duration
}

// FakeLauncher returns a prepared FakeBrowser.
type FakeLauncher struct {
	Browser *FakeBrowser
	Err     error
}

// Launch returns the configured browser or error.
func (l *FakeLauncher) Launch(ctx context.Context) (Browser, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Browser, nil
}

// FakeBrowser is an in-memory Browser for tests. No network or rendering
// is involved; every page is created by PageFactory.
type FakeBrowser struct {
	// PageFactory builds the page for the n-th context (1-based, creation order).
	PageFactory func(n int) *FakePage

	// ContextHook, when set, can fail context creation.
	ContextHook func(n int, opts ContextOptions) error

	mu       sync.Mutex
	contexts []*FakeContext
	closed   bool
}

// NewFakeBrowser creates a FakeBrowser whose pages accept every operation.
func NewFakeBrowser() *FakeBrowser {
	return &FakeBrowser{}
}

// NewContext creates a FakeContext.
func (b *FakeBrowser) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	n := len(b.contexts) + 1
	hook := b.ContextHook
	b.mu.Unlock()

	if hook != nil {
		if err := hook(n, opts); err != nil {
			return nil, err
		}
	}

	var page *FakePage
	if b.PageFactory != nil {
		page = b.PageFactory(n)
	}
	if page == nil {
		page = NewFakePage()
	}

	fc := &FakeContext{Options: opts, page: page}
	b.mu.Lock()
	b.contexts = append(b.contexts, fc)
	b.mu.Unlock()
	return fc, nil
}

// Close marks the browser closed.
func (b *FakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *FakeBrowser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Contexts returns every context created so far.
func (b *FakeBrowser) Contexts() []*FakeContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*FakeContext, len(b.contexts))
	copy(out, b.contexts)
	return out
}

// FakeContext hands out a single prepared page.
type FakeContext struct {
	Options ContextOptions

	mu     sync.Mutex
	page   *FakePage
	closed bool
}

// NewPage returns the context's page.
func (c *FakeContext) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.page, nil
}

// Page returns the underlying fake page.
func (c *FakeContext) Page() *FakePage {
	return c.page
}

// Close marks the context closed.
func (c *FakeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *FakeContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakePage records every operation and delegates outcomes to optional hooks.
// Hooks run without the page lock held, so they may inspect the page.
type FakePage struct {
	// ActionHook decides the outcome of Navigate, Click, Fill and WaitFor.
	ActionHook func(call Call) error

	// ExistsHook decides Exists. Defaults to true.
	ExistsHook func(selector string) (bool, error)

	// TextHook decides TextContent. Defaults to "".
	TextHook func(selector string) (string, error)

	mu     sync.Mutex
	calls  []Call
	closed bool
}

// NewFakePage creates a page on which every operation succeeds.
func NewFakePage() *FakePage {
	return &FakePage{}
}

func (p *FakePage) record(call Call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.calls = append(p.calls, call)
	return nil
}

func (p *FakePage) act(ctx context.Context, call Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.record(call); err != nil {
		return err
	}
	if p.ActionHook != nil {
		return p.ActionHook(call)
	}
	return nil
}

// Navigate records a navigation.
func (p *FakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return p.act(ctx, Call{Op: OpNavigate, Value: url, Duration: timeout})
}

// Click records a click.
func (p *FakePage) Click(ctx context.Context, selector string) error {
	return p.act(ctx, Call{Op: OpClick, Selector: selector})
}

// Fill records a fill.
func (p *FakePage) Fill(ctx context.Context, selector, value string) error {
	return p.act(ctx, Call{Op: OpFill, Selector: selector, Value: value})
}

// WaitFor records a wait.
func (p *FakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	return p.act(ctx, Call{Op: OpWaitFor, Selector: selector, Duration: timeout})
}

// Exists records a lookup.
func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := p.record(Call{Op: OpExists, Selector: selector}); err != nil {
		return false, err
	}
	if p.ExistsHook != nil {
		return p.ExistsHook(selector)
	}
	return true, nil
}

// TextContent records a text lookup.
func (p *FakePage) TextContent(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.record(Call{Op: OpText, Selector: selector}); err != nil {
		return "", err
	}
	if p.TextHook != nil {
		return p.TextHook(selector)
	}
	return "", nil
}

// Sleep records the requested duration and returns immediately.
func (p *FakePage) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record(Call{Op: OpSleep, Duration: d})
}

// Close marks the page closed.
func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Calls returns every recorded operation in order.
func (p *FakePage) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Count returns how many operations of kind op were recorded. An empty
// selector matches any selector.
func (p *FakePage) Count(op Op, selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Op == op && (selector == "" || c.Selector == selector) {
			n++
		}
	}
	return n
}

// Slept returns the durations passed to Sleep.
func (p *FakePage) Slept() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []time.Duration
	for _, c := range p.calls {
		if c.Op == OpSleep {
			out = append(out, c.Duration)
		}
	}
	return out
}
