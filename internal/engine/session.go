package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

const actionTimeout = 60 * time.Second

// chromeSession owns a Chrome process driven over the DevTools protocol.
type chromeSession struct {
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	cookies       CookieAccess
}

// newChromeSession launches a browser. A nil opts launches the engine's
// default headful session; otherwise headless mode, executable path and
// user data directory come from opts.
func newChromeSession(opts *Options) (*chromeSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if opts == nil {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
		if opts.ChromePath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
		}
		if opts.UserDataDir != "" {
			allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	s := &chromeSession{
		allocCtx:      allocCtx,
		browserCtx:    browserCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
	}
	// Context-level cookie access, resolved once.
	s.cookies = &contextCookies{session: s}
	return s, nil
}

// run executes DevTools actions against the session with a bounded timeout.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	actionCtx, cancel := context.WithTimeout(s.browserCtx, actionTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(actionCtx, actions...) }()
	select {
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *chromeSession) TakeScreenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := s.run(ctx, action); err != nil {
		return nil, fmt.Errorf("take screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

func (s *chromeSession) CookieAccess() CookieAccess {
	return s.cookies
}

func (s *chromeSession) Close(ctx context.Context) error {
	s.browserCancel()
	s.allocCancel()
	return nil
}

// contextCookies retrieves cookies at the browser-context level.
type contextCookies struct {
	session *chromeSession
}

func (c *contextCookies) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := c.session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}
