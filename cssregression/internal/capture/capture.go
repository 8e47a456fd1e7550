// CLAUDE:SUMMARY Takes reference and test screenshots for every case of a suite under a skip/force policy.
// Package capture drives screenshot capture for test suites. It decides
// which images to take and where to write them; the browser work is behind
// the Shooter interface.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazyhaar/cssregression/cssregression/internal/model"
)

// ErrCaptureFailure wraps any error that prevented an image from being
// written.
var ErrCaptureFailure = errors.New("capture failure")

// Shooter takes a full-page PNG of url at a viewport width.
type Shooter interface {
	Capture(ctx context.Context, url string, width int) ([]byte, error)
	Close() error
}

// Policy selects which images CaptureSuite takes.
type Policy struct {
	// Force retakes the reference even when it exists.
	Force bool
	// SkipTest leaves test images alone.
	SkipTest bool
}

// Stats counts what a CaptureSuite call did, per image.
type Stats struct {
	Captured int `json:"captured"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Captured += o.Captured
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Progress is notified after each image attempt.
type Progress func(tc *model.TestCase, kind string, err error)

// Capturer writes reference and test screenshots.
type Capturer struct {
	shooter  Shooter
	baseURL  string
	logger   *slog.Logger
	progress Progress
}

// Option customises a Capturer.
type Option func(*Capturer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Capturer) { c.logger = l } }

// WithProgress sets a callback run after every image attempt.
func WithProgress(p Progress) Option { return func(c *Capturer) { c.progress = p } }

// New creates a Capturer. baseURL is prefixed to every case URL.
func New(shooter Shooter, baseURL string, opts ...Option) *Capturer {
	c := &Capturer{shooter: shooter, baseURL: baseURL, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CaptureSuite takes the images policy asks for. A reference is taken when
// forced or missing; a test image unless SkipTest. Failures are logged and
// counted and never stop the suite. Only context cancellation is returned.
func (c *Capturer) CaptureSuite(ctx context.Context, suite *model.TestSuite, policy Policy) (Stats, error) {
	var st Stats
	for _, tc := range suite.Tests {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		if policy.Force || !exists(tc.ReferenceImagePath) {
			c.shoot(ctx, tc, "reference", tc.ReferenceImagePath, &st)
		} else {
			c.logger.Debug("capture: reference exists", "case", tc.Label(), "path", tc.ReferenceImagePath)
			st.Skipped++
		}

		if policy.SkipTest {
			continue
		}
		// A test image left by an earlier run must not stand in for a
		// failed shot.
		if err := os.Remove(tc.TestImagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("capture: remove stale test image", "case", tc.Label(), "path", tc.TestImagePath, "error", err)
		}
		c.shoot(ctx, tc, "test", tc.TestImagePath, &st)
	}
	return st, ctx.Err()
}

// URL is the absolute address of a case.
func (c *Capturer) URL(tc *model.TestCase) string {
	return c.baseURL + tc.URL
}

// Close releases the shooter.
func (c *Capturer) Close() error {
	return c.shooter.Close()
}

func (c *Capturer) shoot(ctx context.Context, tc *model.TestCase, kind, path string, st *Stats) {
	err := c.write(ctx, tc, path)
	if err != nil {
		st.Failed++
		c.logger.Error("capture: failed", "case", tc.Label(), "kind", kind, "url", c.URL(tc), "error", err)
	} else {
		st.Captured++
		c.logger.Info("capture: wrote", "case", tc.Label(), "kind", kind, "path", path)
	}
	if c.progress != nil {
		c.progress(tc, kind, err)
	}
}

func (c *Capturer) write(ctx context.Context, tc *model.TestCase, path string) error {
	data, err := c.shooter.Capture(ctx, c.URL(tc), tc.ViewportWidth)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCaptureFailure, tc.Label(), err)
	}
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCaptureFailure, tc.Label(), err)
	}
	return nil
}

// writeFile writes data next to path and renames it into place, so a
// partial write never leaves a truncated PNG behind.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
