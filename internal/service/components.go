package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
	"github.com/veloxpay/guestpay/internal/agent"
	"github.com/veloxpay/guestpay/internal/browser"
	"github.com/veloxpay/guestpay/internal/observability"
	"github.com/veloxpay/guestpay/internal/store"
)

// Components holds the initialized services required for a payment run.
// This struct centralizes the lifecycle management of run dependencies.
type Components struct {
	Agent          *agent.Orchestrator
	BrowserManager *browser.Manager
	LLMClient      schemas.LLMClient
	Store          *store.Store
	DBPool         *pgxpool.Pool

	// browserAllocCancel tears down the chromedp exec allocator created for
	// this run's browser lifecycle.
	browserAllocCancel context.CancelFunc
}

// Shutdown gracefully closes all components, releasing resources in the
// reverse order of their creation.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Shut down the browser manager and its sessions. Use a separate
	// context with a timeout so shutdown completes even if the run context
	// was canceled.
	if c.BrowserManager != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.BrowserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	// 2. Tear down the browser process allocator.
	if c.browserAllocCancel != nil {
		c.browserAllocCancel()
		logger.Debug("Browser allocator released.")
	}

	// 3. Close LLM client connections.
	if c.LLMClient != nil {
		if err := c.LLMClient.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		} else {
			logger.Debug("LLM client closed.")
		}
	}

	// 4. Close the database connection pool, if run history was enabled.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down successfully.")
}
