package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/internal/config"
)

// Session represents a single browser tab driven over CDP. All page
// operations combine the session's lifecycle context with the caller's
// operational context, so either side can abort an in-flight action.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	onClose   func()
	closeOnce sync.Once
}

// newSession wires up a Session around an established chromedp tab context.
func newSession(tabCtx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zap.Logger) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:     sessionID,
		ctx:    tabCtx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.With(zap.String("session_id", sessionID)),
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Context returns the session's lifecycle context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// SetOnClose sets the callback function to be executed when the session is closed.
func (s *Session) SetOnClose(callback func()) {
	s.onClose = callback
}

// RunActions executes chromedp actions against this session's tab, honoring
// both the session context and the operational context.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads a URL, waits for the document to become ready, and then
// allows the page a quiet period to settle dynamic content.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	s.logger.Info("Navigating", zap.String("url", targetURL))

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()

	if err := s.RunActions(navCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to '%s' failed: %w", targetURL, err)
	}

	return s.Settle(ctx, s.cfg.Network.PostLoadWait)
}

// CurrentURL returns the URL of the page currently loaded in the tab.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.RunActions(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read current location: %w", err)
	}
	return loc, nil
}

// Title returns the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.RunActions(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read document title: %w", err)
	}
	return title, nil
}

// Evaluate runs a snippet of JavaScript in the page and unmarshals the
// result into res. Promises are awaited and exceptions surface as errors.
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	evalCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	err := s.RunActions(evalCtx,
		chromedp.Evaluate(script, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("timeout evaluating script: %w", evalCtx.Err())
		}
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// Click dispatches a native click on the first element matching the CSS selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	clickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.RunActions(clickCtx,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return fmt.Errorf("click on '%s' failed: %w", selector, err)
	}
	return s.Settle(ctx, s.cfg.Network.PostActionWait)
}

// Type clears the element matching the CSS selector and types the given text
// into it using native key events.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	typeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := s.RunActions(typeCtx,
		chromedp.Focus(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("typing into '%s' failed: %w", selector, err)
	}
	return nil
}

// PressEnter sends an Enter keypress to the element matching the selector.
func (s *Session) PressEnter(ctx context.Context, selector string) error {
	keyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.RunActions(keyCtx,
		chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("pressing Enter on '%s' failed: %w", selector, err)
	}
	return s.Settle(ctx, s.cfg.Network.PostActionWait)
}

// Scroll moves the viewport by roughly one screen in the given direction
// ("up" or anything else meaning down).
func (s *Session) Scroll(ctx context.Context, direction string) error {
	delta := 600
	if direction == "up" {
		delta = -600
	}
	script := fmt.Sprintf("window.scrollBy(0, %d); true", delta)
	var ok bool
	return s.Evaluate(ctx, script, &ok)
}

// Screenshot captures the full page as a PNG. Quality 100 is what selects
// PNG output from FullScreenshot; any lower value produces JPEG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	shotCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	var buf []byte
	if err := s.RunActions(shotCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Settle pauses for a quiet period, respecting the operational context. It
// gives the page time to process the consequences of the previous action.
func (s *Session) Settle(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		return nil
	}
	settleCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	timer := time.NewTimer(quiet)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-settleCtx.Done():
		return settleCtx.Err()
	}
}

// Close terminates the session and releases the tab.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.")
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}
