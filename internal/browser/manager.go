package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veloxpay/guestpay/internal/config"
)

// Manager owns the browser allocator context and tracks the sessions spawned
// from it. Sessions left open when Shutdown is called get closed with it.
type Manager struct {
	allocCtx context.Context
	cfg      *config.Config
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a browser manager on top of an allocator context built
// by the caller (typically via chromedp.NewExecAllocator).
func NewManager(allocCtx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if allocCtx == nil {
		return nil, fmt.Errorf("allocator context is required")
	}
	return &Manager{
		allocCtx: allocCtx,
		cfg:      cfg,
		logger:   logger.Named("browser"),
		sessions: make(map[string]*Session),
	}, nil
}

// NewSession spins up a fresh tab and returns a Session bound to it. The
// browser process itself is started lazily on the first session.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.mu.Unlock()

	opts := []chromedp.ContextOption{}
	if m.cfg.Browser.Debug {
		opts = append(opts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
	}

	tabCtx, cancel := chromedp.NewContext(m.allocCtx, opts...)

	// A blank run forces the browser process and target to come up now, so
	// failures surface here instead of on the first real action.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser tab: %w", err)
	}

	s := newSession(tabCtx, cancel, m.cfg, m.logger)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	s.SetOnClose(func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
	})

	m.logger.Info("Browser session created", zap.String("session_id", s.ID()))
	return s, nil
}

// Shutdown closes every live session. The allocator context itself is owned
// and canceled by the caller that built it.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, s := range open {
		s := s
		g.Go(func() error {
			return s.Close(gCtx)
		})
	}
	err := g.Wait()
	m.logger.Info("Browser manager shut down", zap.Int("sessions_closed", len(open)))
	return err
}
