package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeBrowser_ContextsGetOwnPages(t *testing.T) {
	ctx := context.Background()
	b := NewFakeBrowser()

	c1, err := b.NewContext(ctx, DefaultContextOptions())
	require.NoError(t, err)
	c2, err := b.NewContext(ctx, DefaultContextOptions())
	require.NoError(t, err)

	p1, err := c1.NewPage(ctx)
	require.NoError(t, err)
	p2, err := c2.NewPage(ctx)
	require.NoError(t, err)

	require.NoError(t, p1.Click(ctx, "#a"))
	assert.Equal(t, 1, p1.(*FakePage).Count(OpClick, "#a"))
	assert.Equal(t, 0, p2.(*FakePage).Count(OpClick, ""))

	contexts := b.Contexts()
	require.Len(t, contexts, 2)
	assert.Equal(t, DefaultViewportWidth, contexts[0].Options.ViewportWidth)
	assert.Equal(t, DefaultUserAgent, contexts[1].Options.UserAgent)
}

func TestFakeBrowser_ClosedRejectsContexts(t *testing.T) {
	b := NewFakeBrowser()
	require.NoError(t, b.Close())
	assert.True(t, b.Closed())

	_, err := b.NewContext(context.Background(), ContextOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFakeBrowser_ContextHook(t *testing.T) {
	boom := errors.New("no more contexts")
	b := &FakeBrowser{
		ContextHook: func(n int, opts ContextOptions) error {
			if n == 2 {
				return boom
			}
			return nil
		},
	}

	_, err := b.NewContext(context.Background(), ContextOptions{})
	require.NoError(t, err)
	_, err = b.NewContext(context.Background(), ContextOptions{})
	assert.ErrorIs(t, err, boom)
}

func TestFakePage_HooksAndRecording(t *testing.T) {
	ctx := context.Background()
	page := NewFakePage()
	page.ActionHook = func(call Call) error {
		if call.Op == OpClick && page.Count(OpClick, call.Selector) < 2 {
			return ErrElementNotFound
		}
		return nil
	}
	page.ExistsHook = func(selector string) (bool, error) { return selector == "#here", nil }
	page.TextHook = func(selector string) (string, error) { return "hello", nil }

	assert.ErrorIs(t, page.Click(ctx, "#btn"), ErrElementNotFound)
	assert.NoError(t, page.Click(ctx, "#btn"))

	ok, err := page.Exists(ctx, "#here")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = page.Exists(ctx, "#gone")
	require.NoError(t, err)
	assert.False(t, ok)

	text, err := page.TextContent(ctx, "#msg")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	require.NoError(t, page.Sleep(ctx, 3*time.Second))
	require.NoError(t, page.Fill(ctx, "#user", "alice"))
	require.NoError(t, page.Navigate(ctx, "https://example.com", time.Second))

	assert.Equal(t, []time.Duration{3 * time.Second}, page.Slept())
	calls := page.Calls()
	require.Len(t, calls, 8)
	assert.Equal(t, Call{Op: OpFill, Selector: "#user", Value: "alice"}, calls[6])
	assert.Equal(t, "https://example.com", calls[7].Value)
}

func TestFakePage_ClosedAndCancelled(t *testing.T) {
	page := NewFakePage()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, page.Click(ctx, "#a"), context.Canceled)
	assert.ErrorIs(t, page.Sleep(ctx, time.Second), context.Canceled)

	require.NoError(t, page.Close())
	assert.True(t, page.Closed())
	assert.ErrorIs(t, page.Click(context.Background(), "#a"), ErrClosed)
	assert.Empty(t, page.Calls())
}

func TestFakeLauncher(t *testing.T) {
	b := NewFakeBrowser()
	got, err := (&FakeLauncher{Browser: b}).Launch(context.Background())
	require.NoError(t, err)
	assert.Same(t, b, got)

	boom := errors.New("no chromium")
	_, err = (&FakeLauncher{Err: boom}).Launch(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDefaults(t *testing.T) {
	launch := DefaultLaunchOptions()
	assert.True(t, launch.Headless)
	assert.Contains(t, launch.Args, "--disable-dev-shm-usage")

	opts := DefaultContextOptions()
	assert.Equal(t, 1280, opts.ViewportWidth)
	assert.Equal(t, 800, opts.ViewportHeight)
}
