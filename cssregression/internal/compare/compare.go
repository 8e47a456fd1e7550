// CLAUDE:SUMMARY Pixel-diffs each test image against its reference, writes the difference PNG and records pass/fail on the suite.
// Package compare diffs test screenshots against their references.
package compare

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/orisano/pixelmatch"

	"github.com/hazyhaar/cssregression/cssregression/internal/model"
)

// Failure reasons recorded on a test case. Each wraps into one of the
// sentinels below with errors.Is.
var (
	ErrMissingArtifact    = errors.New("files not found")
	ErrDimensionMismatch  = errors.New("wrong size")
	ErrThresholdExceeded  = errors.New("image difference")
	ErrUnreadableArtifact = errors.New("unreadable image")
)

// Progress is notified after each case is decided.
type Progress func(tc *model.TestCase, err error)

// Comparator compares the cases of a suite.
type Comparator struct {
	threshold   int
	sensitivity float64
	logger      *slog.Logger
	progress    Progress
}

// Option customises a Comparator.
type Option func(*Comparator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Comparator) { c.logger = l } }

// WithProgress sets a callback run after each case.
func WithProgress(p Progress) Option { return func(c *Comparator) { c.progress = p } }

// New creates a Comparator. threshold is the largest differing-pixel count
// that still passes; sensitivity (0..1) is the per-pixel color tolerance.
func New(threshold int, sensitivity float64, opts ...Option) *Comparator {
	c := &Comparator{threshold: threshold, sensitivity: sensitivity, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Threshold returns the pass limit in differing pixels.
func (c *Comparator) Threshold() int { return c.threshold }

// Compare resets the suite counters and decides every case. It returns the
// difference images written. Artifact read or write problems fail the case
// and are returned joined; missing files, size mismatches and differences
// above the threshold only fail the case.
func (c *Comparator) Compare(ctx context.Context, suite *model.TestSuite) ([]string, error) {
	suite.Reset()

	var written []string
	var errs []error
	for _, tc := range suite.Tests {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		diffPath, err := c.compareCase(tc)
		if diffPath != "" {
			written = append(written, diffPath)
		}
		switch {
		case err == nil:
			suite.Pass(tc)
			c.logger.Info("compare: ok", "case", tc.Label(), "difference", tc.Difference)
		case errors.Is(err, ErrUnreadableArtifact):
			suite.Fail(tc, err.Error())
			errs = append(errs, err)
			c.logger.Error("compare: failed", "case", tc.Label(), "error", err)
		default:
			suite.Fail(tc, err.Error())
			c.logger.Warn("compare: failed", "case", tc.Label(), "reason", err.Error())
		}
		if c.progress != nil {
			c.progress(tc, err)
		}
	}
	return written, errors.Join(errs...)
}

// compareCase returns the difference image path when one was written.
func (c *Comparator) compareCase(tc *model.TestCase) (string, error) {
	tc.Difference = 0
	if !exists(tc.ReferenceImagePath) || !exists(tc.TestImagePath) {
		return "", ErrMissingArtifact
	}

	ref, err := readPNG(tc.ReferenceImagePath)
	if err != nil {
		return "", err
	}
	test, err := readPNG(tc.TestImagePath)
	if err != nil {
		return "", err
	}

	rb, tb := ref.Bounds(), test.Bounds()
	if rb.Dx() == 0 || rb.Dy() == 0 || rb.Dx() != tb.Dx() || rb.Dy() != tb.Dy() {
		return "", fmt.Errorf("%w: reference %dx%d, test %dx%d",
			ErrDimensionMismatch, rb.Dx(), rb.Dy(), tb.Dx(), tb.Dy())
	}

	var out image.Image
	n, err := pixelmatch.MatchPixel(ref, test, pixelmatch.Threshold(c.sensitivity), pixelmatch.WriteTo(&out))
	if err != nil {
		return "", fmt.Errorf("%w: pixelmatch: %w", ErrUnreadableArtifact, err)
	}
	tc.Difference = n
	if out == nil {
		out = image.NewRGBA(image.Rect(0, 0, rb.Dx(), rb.Dy()))
	}

	if err := writePNG(tc.DifferenceImagePath, out); err != nil {
		return "", err
	}
	if n > c.threshold {
		return tc.DifferenceImagePath, fmt.Errorf("%w %d", ErrThresholdExceeded, n)
	}
	return tc.DifferenceImagePath, nil
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableArtifact, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableArtifact, path, err)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: write difference: %w", ErrUnreadableArtifact, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: write difference: %w", ErrUnreadableArtifact, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%w: encode difference: %w", ErrUnreadableArtifact, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: write difference: %w", ErrUnreadableArtifact, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
