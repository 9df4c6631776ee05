package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ScreenshotRecorder persists page captures to a local directory. Files are
// named {session-id}-{label}.png so runs never collide.
type ScreenshotRecorder struct {
	dir    string
	logger *zap.Logger
}

var _ Recorder = (*ScreenshotRecorder)(nil)

// NewScreenshotRecorder ensures the target directory exists.
func NewScreenshotRecorder(dir string, logger *zap.Logger) (*ScreenshotRecorder, error) {
	if dir == "" {
		dir = "screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory %q: %w", dir, err)
	}
	return &ScreenshotRecorder{dir: dir, logger: logger.Named("screenshots")}, nil
}

// Capture takes a full-page screenshot and writes it to disk, returning the
// file path.
func (r *ScreenshotRecorder) Capture(ctx context.Context, page PageSession, label string) (string, error) {
	buf, err := page.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("screenshot capture failed: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s-%s.png", page.ID(), label))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot %q: %w", path, err)
	}

	r.logger.Debug("Screenshot captured", zap.String("path", path), zap.Int("bytes", len(buf)))
	return path, nil
}
