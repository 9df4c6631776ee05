package llmclient

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/veloxpay/guestpay/internal/config"
)

// setupTestLogger provides a zap logger wired into the test's logging.
func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

// getValidLLMConfig returns a model configuration that passes constructor
// validation. Individual tests override fields as needed.
func getValidLLMConfig() config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:   config.ProviderGemini,
		Model:      "gemini-2.5-pro",
		APIKey:     "test-api-key",
		APITimeout: 30 * time.Second,
	}
}
