// CLAUDE:SUMMARY Human-facing run output: colored per-case lines, per-suite totals and a capture progress bar.
// Package console prints run progress for people at a terminal.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/hazyhaar/cssregression/cssregression/internal/model"
)

// Reporter writes one line per decided case and a progress bar over
// capture steps. It is safe for concurrent use.
type Reporter struct {
	mu            sync.Mutex
	out           io.Writer
	barOut        io.Writer
	bar           *progressbar.ProgressBar
	captured      int
	captureFailed int

	okColor   *color.Color
	failColor *color.Color
	infoColor *color.Color
	dimColor  *color.Color
}

// Option customises a Reporter.
type Option func(*Reporter)

// WithColor forces colors on or off. By default fatih/color decides from
// the terminal.
func WithColor(on bool) Option {
	return func(r *Reporter) {
		for _, c := range []*color.Color{r.okColor, r.failColor, r.infoColor, r.dimColor} {
			if on {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// WithProgressWriter sends the progress bar to w (io.Discard hides it).
func WithProgressWriter(w io.Writer) Option { return func(r *Reporter) { r.barOut = w } }

// New creates a Reporter writing lines to out.
func New(out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{
		out:       out,
		barOut:    out,
		okColor:   color.New(color.FgGreen),
		failColor: color.New(color.FgRed, color.Bold),
		infoColor: color.New(color.FgCyan),
		dimColor:  color.New(color.Faint),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// StartCapture opens a progress bar over total image captures.
func (r *Reporter) StartCapture(label string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured, r.captureFailed = 0, 0
	if total <= 0 {
		r.bar = nil
		return
	}
	out := r.barOut
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(r.describe(label)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        r.infoColor.Sprint("█"),
			SaucerHead:    r.infoColor.Sprint("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
	)
}

// CaptureStep advances the bar by one image.
func (r *Reporter) CaptureStep(label string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.captureFailed++
	} else {
		r.captured++
	}
	if r.bar == nil {
		return
	}
	r.bar.Describe(r.describe(label))
	_ = r.bar.Add(1)
}

// FinishCapture closes the bar.
func (r *Reporter) FinishCapture() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}

func (r *Reporter) describe(label string) string {
	return r.infoColor.Sprintf("Capturing %s ", label) +
		r.okColor.Sprintf("[written: %d", r.captured) +
		" | " +
		r.failColor.Sprintf("failed: %d]", r.captureFailed)
}

// Case prints the outcome of one compared case.
func (r *Reporter) Case(entity, site string, tc *model.TestCase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	where := r.dimColor.Sprintf("%s [%s]", entity, site)
	if tc.IsValid {
		fmt.Fprintf(r.out, "  %s %s %s\n", r.okColor.Sprint("ok  "), where, tc.Label())
		return
	}
	fmt.Fprintf(r.out, "  %s %s %s: %s\n", r.failColor.Sprint("FAIL"), where, tc.Label(), tc.Failure)
}

// Suite prints the totals of one compared suite.
func (r *Reporter) Suite(entity string, s *model.TestSuite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := r.okColor.Sprint("ok")
	if !s.IsValid {
		status = r.failColor.Sprint("failed")
	}
	fmt.Fprintf(r.out, "%s %s [%s]: %d ok, %d failed\n", status, entity, s.Site, s.OK, s.Failed)
}

// Summary prints the run totals.
func (r *Reporter) Summary(ok, failed, systemErrors int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := fmt.Sprintf("%d ok, %d failed", ok, failed)
	if systemErrors > 0 {
		line += fmt.Sprintf(", %d errors", systemErrors)
	}
	if failed > 0 || systemErrors > 0 {
		fmt.Fprintln(r.out, r.failColor.Sprint(line))
		return
	}
	fmt.Fprintln(r.out, r.okColor.Sprint(line))
}
