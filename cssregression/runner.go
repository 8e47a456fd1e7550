// CLAUDE:SUMMARY Reference and test runs over a catalog query: derive suites, capture screenshots, compare, persist state and history.
// Package cssregression runs CSS visual regression tests over the entities
// of a component catalog. A reference run captures baseline screenshots; a
// test run captures fresh ones, pixel-diffs them against the baselines and
// records pass/fail per viewport width.
package cssregression

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hazyhaar/cssregression/cssregression/internal/browser"
	"github.com/hazyhaar/cssregression/cssregression/internal/capture"
	"github.com/hazyhaar/cssregression/cssregression/internal/catalog"
	"github.com/hazyhaar/cssregression/cssregression/internal/compare"
	"github.com/hazyhaar/cssregression/cssregression/internal/config"
	"github.com/hazyhaar/cssregression/cssregression/internal/console"
	"github.com/hazyhaar/cssregression/cssregression/internal/derive"
	"github.com/hazyhaar/cssregression/cssregression/internal/model"
	"github.com/hazyhaar/cssregression/cssregression/internal/paths"
	"github.com/hazyhaar/cssregression/cssregression/internal/store"
)

// Options configures a Runner.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// Out receives the per-case console lines. Default: os.Stdout.
	Out io.Writer
	// Progress receives the capture progress bar. Default: os.Stderr.
	Progress io.Writer
	// Color forces console colors on or off; nil lets the terminal decide.
	Color *bool

	// Shooter replaces the headless browser, mostly for tests.
	Shooter capture.Shooter

	// Store records run history. When nil and Config.Store.Path is set, the
	// Runner opens (and later closes) its own.
	Store *store.Store

	// Threshold overrides the configured differenceThreshold for this
	// Runner.
	Threshold *int
}

// Runner executes reference and test runs. Runs are sequential; a Runner
// must not be used from several goroutines at once.
type Runner struct {
	cfg        *config.Config
	module     *config.Module
	resolver   *paths.Templates
	deriver    *derive.Deriver
	capturer   *capture.Capturer
	comparator *compare.Comparator
	store      *store.Store
	ownsStore  bool
	reporter   *console.Reporter
	logger     *slog.Logger

	// runID and where identify the run and the (entity, site) in progress.
	runID string
	where struct{ entity, site string }

	closeOnce sync.Once
	closeErr  error
}

// Report summarises one run.
type Report struct {
	RunID  string        `json:"run_id,omitempty"`
	Kind   string        `json:"kind"`
	Query  string        `json:"query"`
	Suites []SuiteReport `json:"suites"`
	OK     int           `json:"ok"`
	Failed int           `json:"failed"`
	// Errors counts entities or suites skipped because of a system error.
	Errors  int           `json:"errors"`
	Capture capture.Stats `json:"capture"`
}

// SuiteReport is the outcome of one (entity, site) suite.
type SuiteReport struct {
	Entity   string        `json:"entity"`
	Site     string        `json:"site"`
	Total    int           `json:"total"`
	OK       int           `json:"ok"`
	Failed   int           `json:"failed"`
	Capture  capture.Stats `json:"capture"`
	Failures []CaseFailure `json:"failures,omitempty"`
}

// CaseFailure describes a failed test case.
type CaseFailure struct {
	Name           string `json:"name"`
	Width          int    `json:"width"`
	Reason         string `json:"reason"`
	Difference     int    `json:"difference"`
	DifferencePath string `json:"difference_path,omitempty"`
}

// HasFailures reports whether any case failed or any suite hit a system
// error.
func (r *Report) HasFailures() bool { return r.Failed > 0 || r.Errors > 0 }

// New wires a Runner. The browser is not started until the first capture.
func New(opts Options) (*Runner, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	progress := opts.Progress
	if progress == nil {
		progress = os.Stderr
	}

	r := &Runner{
		cfg:      cfg,
		module:   cfg.Module(),
		resolver: paths.New(cfg.Paths),
		store:    opts.Store,
		logger:   logger,
	}

	consoleOpts := []console.Option{console.WithProgressWriter(progress)}
	if opts.Color != nil {
		consoleOpts = append(consoleOpts, console.WithColor(*opts.Color))
	}
	r.reporter = console.New(out, consoleOpts...)

	shooter := opts.Shooter
	if shooter == nil {
		b := cfg.Browser
		shooter = browser.NewManager(browser.Config{
			RemoteURL:         b.Remote,
			Bin:               b.Bin,
			NoSandbox:         b.NoSandbox,
			Stealth:           b.Stealth,
			Block:             b.Block,
			ViewportHeight:    b.ViewportHeight,
			NavigationTimeout: b.NavigationTimeout,
			Scroll:            b.Scroll,
			ScrollDelay:       b.ScrollDelay,
			Logger:            logger,
		})
	}

	r.deriver = derive.New(r.module, r.resolver, declarations{}, derive.WithLogger(logger))
	r.capturer = capture.New(shooter, r.module.ServerBaseURL(),
		capture.WithLogger(logger),
		capture.WithProgress(func(tc *model.TestCase, kind string, err error) {
			r.reporter.CaptureStep(tc.Label()+" "+kind, err)
		}),
	)

	threshold := r.module.DifferenceThreshold()
	if opts.Threshold != nil && *opts.Threshold >= 0 {
		threshold = *opts.Threshold
	}
	r.comparator = compare.New(threshold, r.module.Sensitivity(),
		compare.WithLogger(logger),
		compare.WithProgress(func(tc *model.TestCase, _ error) {
			r.reporter.Case(r.where.entity, r.where.site, tc)
		}),
	)

	if r.store == nil && cfg.Store.Path != "" {
		p, err := r.resolver.Resolve(cfg.Store.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("cssregression: store path: %w", err)
		}
		s, err := store.Open(p)
		if err != nil {
			return nil, err
		}
		r.store = s
		r.ownsStore = true
	}
	return r, nil
}

// declarations reads test declarations from entity properties.
type declarations struct{}

func (declarations) TestDeclarations(e *model.Entity, site string) ([]model.TestDeclaration, error) {
	return catalog.Declarations(e, site)
}

// Threshold is the differing-pixel count a case may reach and still pass.
func (r *Runner) Threshold() int { return r.comparator.Threshold() }

// Store returns the history store, or nil.
func (r *Runner) Store() *store.Store { return r.store }

// Reference captures baseline screenshots for every case the query selects,
// overwriting existing ones. Test images are not taken.
func (r *Runner) Reference(ctx context.Context, query string) (*Report, error) {
	return r.run(ctx, store.KindReference, query)
}

// Test captures fresh screenshots (and any missing baseline), compares them
// and persists suite state. Failed cases do not make Test return an error.
func (r *Runner) Test(ctx context.Context, query string) (*Report, error) {
	return r.run(ctx, store.KindTest, query)
}

// Close releases the browser session and an owned store. Safe to call more
// than once.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if err := r.capturer.Close(); err != nil {
			errs = append(errs, err)
		}
		if r.ownsStore {
			if err := r.store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

func (r *Runner) run(ctx context.Context, kind, query string) (*Report, error) {
	start := time.Now()
	rep := &Report{Kind: kind, Query: query}

	if r.store != nil {
		id, err := r.store.BeginRun(ctx, kind, query, r.Threshold())
		if err != nil {
			return nil, err
		}
		rep.RunID = id
	}
	r.runID = rep.RunID

	err := r.runEntities(ctx, rep)
	if r.store != nil {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		// The run row is closed even when ctx was cancelled.
		if ferr := r.store.FinishRun(context.WithoutCancel(ctx), rep.RunID, rep.OK, rep.Failed, msg); ferr != nil {
			r.logger.Error("cssregression: finish run", "run", rep.RunID, "error", ferr)
		}
	}
	if err != nil {
		return rep, err
	}

	if kind == store.KindTest {
		r.reporter.Summary(rep.OK, rep.Failed, rep.Errors)
	}
	r.logger.Info("cssregression: run finished",
		"kind", kind, "query", query, "run", rep.RunID, "suites", len(rep.Suites),
		"ok", rep.OK, "failed", rep.Failed, "errors", rep.Errors, "duration", time.Since(start))
	return rep, nil
}

func (r *Runner) runEntities(ctx context.Context, rep *Report) error {
	sitesDir, err := r.resolver.Resolve("${sites}", nil)
	if err != nil {
		return fmt.Errorf("cssregression: sites dir: %w", err)
	}
	cat, err := catalog.Load(sitesDir, r.logger)
	if err != nil {
		return err
	}
	cat.LoadStates(r.resolver, r.module.TestDataTemplate())

	entities, err := cat.Select(rep.Query)
	if err != nil {
		return err
	}
	r.logger.Info("cssregression: run started", "kind", rep.Kind, "query", rep.Query, "entities", len(entities))

	for _, e := range entities {
		for _, site := range e.Sites() {
			if err := ctx.Err(); err != nil {
				return err
			}
			sr, err := r.runSuite(ctx, rep.Kind, e, site)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if err != nil {
				rep.Errors++
				r.logger.Error("cssregression: suite failed", "entity", e.PathString(), "site", site, "error", err)
			}
			if sr != nil {
				rep.Suites = append(rep.Suites, *sr)
				rep.OK += sr.OK
				rep.Failed += sr.Failed
				rep.Capture.Add(sr.Capture)
			}
		}
	}
	return nil
}

// runSuite handles one (entity, site). It returns a nil report when there
// is nothing to test.
func (r *Runner) runSuite(ctx context.Context, kind string, e *model.Entity, site string) (*SuiteReport, error) {
	ok, err := r.deriver.DeriveFor(ctx, e, site)
	if err != nil || !ok {
		return nil, err
	}
	suite := e.FindSuite(model.SuiteName, site)
	if suite == nil || suite.Total() == 0 {
		return nil, nil
	}
	if suite.Restored {
		r.logger.Info("cssregression: no declarations, skipping persisted suite",
			"entity", e.PathString(), "site", site)
		return nil, nil
	}

	policy := capture.Policy{Force: true, SkipTest: true}
	if kind == store.KindTest {
		policy = capture.Policy{}
	}

	label := e.PathString() + " [" + site + "]"
	r.reporter.StartCapture(label, r.plannedShots(suite, policy))
	stats, err := r.capturer.CaptureSuite(ctx, suite, policy)
	r.reporter.FinishCapture()

	sr := &SuiteReport{Entity: e.PathString(), Site: site, Total: suite.Total(), Capture: stats}
	if err != nil {
		return sr, err
	}
	if kind != store.KindTest {
		return sr, nil
	}

	r.where.entity, r.where.site = e.PathString(), site
	_, cmpErr := r.comparator.Compare(ctx, suite)
	if errors.Is(cmpErr, context.Canceled) || errors.Is(cmpErr, context.DeadlineExceeded) {
		return sr, cmpErr
	}
	r.reporter.Suite(e.PathString(), suite)

	sr.OK, sr.Failed = suite.OK, suite.Failed
	for _, tc := range suite.Tests {
		if tc.IsValid {
			continue
		}
		sr.Failures = append(sr.Failures, CaseFailure{
			Name:           tc.Name,
			Width:          tc.ViewportWidth,
			Reason:         tc.Failure,
			Difference:     tc.Difference,
			DifferencePath: tc.DifferenceImagePath,
		})
	}

	errs := []error{cmpErr}
	if err := r.writeState(e, suite); err != nil {
		errs = append(errs, err)
	}
	if r.store != nil {
		if err := r.store.RecordSuite(ctx, r.runID, e.PathString(), suite); err != nil {
			errs = append(errs, err)
		}
	}
	return sr, errors.Join(errs...)
}

func (r *Runner) plannedShots(suite *model.TestSuite, policy capture.Policy) int {
	n := 0
	for _, tc := range suite.Tests {
		if policy.Force {
			n++
		} else if _, err := os.Stat(tc.ReferenceImagePath); err != nil {
			n++
		}
		if !policy.SkipTest {
			n++
		}
	}
	return n
}

func (r *Runner) writeState(e *model.Entity, suite *model.TestSuite) error {
	p, err := r.resolver.Resolve(r.module.TestDataTemplate(), paths.ForEntity(suite.Site, e.ID))
	if err != nil {
		return fmt.Errorf("cssregression: state path: %w", err)
	}
	return model.WriteState(p, model.NewState(suite, time.Now()))
}
