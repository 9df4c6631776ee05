package service

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"github.com/veloxpay/guestpay/internal/config"
)

func TestGetBrowserExecOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  func() *config.Config
	}{
		{
			name: "Default",
			cfg:  config.NewDefaultConfig,
		},
		{
			name: "Headful",
			cfg: func() *config.Config {
				cfg := config.NewDefaultConfig()
				cfg.Browser.Headless = false
				return cfg
			},
		},
		{
			name: "WithArgs",
			cfg: func() *config.Config {
				cfg := config.NewDefaultConfig()
				cfg.Browser.Args = []string{"--no-zygote", "proxy-server=http://localhost:8080"}
				return cfg
			},
		},
		{
			name: "WithViewportAndTLS",
			cfg: func() *config.Config {
				cfg := config.NewDefaultConfig()
				cfg.Browser.Viewport = map[string]int{"width": 1366, "height": 768}
				cfg.Browser.IgnoreTLSErrors = true
				cfg.Browser.DisableCache = true
				return cfg
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := getBrowserExecOptions(tt.cfg())
			assert.NotEmpty(t, opts)
			// The options are opaque closures; the meaningful check is that
			// config always adds to the chromedp defaults.
			assert.Greater(t, len(opts), len(chromedp.DefaultExecAllocatorOptions))
		})
	}
}
