package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/internal/agent"
	"github.com/veloxpay/guestpay/internal/browser"
	"github.com/veloxpay/guestpay/internal/config"
	"github.com/veloxpay/guestpay/internal/llmclient"
	"github.com/veloxpay/guestpay/internal/store"
)

// ComponentFactory defines the interface for creating the set of components
// needed for a payment run. This abstraction is what makes the run command's
// logic testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// getBrowserExecOptions translates the application config into chromedp
// allocator options.
func getBrowserExecOptions(cfg *config.Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened systems where the Chrome sandbox cannot start.
		chromedp.NoSandbox,
		// Recommended for stability in containers/headless envs.
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if cfg.Browser.Headless {
		opts = append(opts, chromedp.Headless, chromedp.DisableGPU)
	}

	if cfg.Browser.DisableCache {
		opts = append(opts, chromedp.Flag("disable-application-cache", true))
	}

	if cfg.Browser.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}

	if w, h := cfg.Browser.Viewport["width"], cfg.Browser.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}

	// Add additional flags from the config file's 'args' slice.
	for _, arg := range cfg.Browser.Args {
		// Boolean flags (e.g., --no-zygote).
		if !strings.Contains(arg, "=") {
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
			continue
		}

		// key=value flags.
		parts := strings.SplitN(arg, "=", 2)
		opts = append(opts, chromedp.Flag(strings.TrimPrefix(parts[0], "--"), parts[1]))
	}
	return opts
}

// browserSessionFactory adapts the browser manager to the agent's
// session-opening interface.
type browserSessionFactory struct {
	mgr *browser.Manager
}

func (f browserSessionFactory) NewSession(ctx context.Context) (agent.PageSession, error) {
	return f.mgr.NewSession(ctx)
}

// Create handles the full dependency injection and initialization of run
// components.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Run history store. Persistence is optional; without a database URL
	// the run simply is not recorded.
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			initializationErr = fmt.Errorf("failed to create database connection pool: %w", err)
			return nil, initializationErr
		}
		components.DBPool = dbPool

		dbStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize run history store: %w", err)
			return nil, initializationErr
		}
		if err := dbStore.EnsureSchema(ctx); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.Store = dbStore
		logger.Debug("Run history store initialized.")
	} else {
		logger.Info("No database URL configured; run history persistence is disabled.")
	}

	// 2. Browser manager, with its own allocator lifecycle.
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, getBrowserExecOptions(cfg)...)
	components.browserAllocCancel = allocCancel

	browserManager, err := browser.NewManager(allocCtx, cfg, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser manager: %w", err)
		return nil, initializationErr
	}
	components.BrowserManager = browserManager
	logger.Debug("Browser manager initialized.")

	// 3. LLM client router.
	llmClient, err := llmclient.NewClient(cfg.Agent.LLM, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize LLM client: %w", err)
		return nil, initializationErr
	}
	components.LLMClient = llmClient
	logger.Debug("LLM client initialized.")

	// 4. Agent collaborators.
	recorder, err := agent.NewScreenshotRecorder(cfg.Agent.ScreenshotDir, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize screenshot recorder: %w", err)
		return nil, initializationErr
	}

	components.Agent = agent.NewOrchestrator(
		cfg.Agent,
		logger,
		browserSessionFactory{mgr: browserManager},
		agent.NewExtractor(logger),
		agent.NewActionExecutor(logger, cfg.Network.PostActionWait),
		agent.NewDecisionService(llmClient, logger),
		recorder,
	)
	logger.Info("All components initialized successfully.")

	return components, nil
}
