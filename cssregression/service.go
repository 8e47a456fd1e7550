package cssregression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/cssregression/cssregression/internal/store"
)

// ErrRunBusy is returned when a run is requested while another is active.
var ErrRunBusy = errors.New("cssregression: a run is already in progress")

// RunFunc performs one run of kind ("reference" or "test"). A nil threshold
// keeps the configured one.
type RunFunc func(ctx context.Context, kind, query string, threshold *int) (*Report, error)

// Service exposes run history and on-demand runs over HTTP and MCP.
type Service struct {
	store  *store.Store
	run    RunFunc
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewService creates a Service. run may be nil to make the service read-only.
func NewService(s *store.Store, run RunFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, run: run, logger: logger}
}

// RunnerFunc adapts Runner construction into a RunFunc: every call builds a
// Runner from opts (with the threshold override applied), runs it and
// closes it, so each run gets its own browser session.
func RunnerFunc(opts Options) RunFunc {
	return func(ctx context.Context, kind, query string, threshold *int) (*Report, error) {
		o := opts
		if threshold != nil {
			o.Threshold = threshold
		}
		r, err := New(o)
		if err != nil {
			return nil, err
		}
		defer r.Close()

		switch kind {
		case store.KindReference:
			return r.Reference(ctx, query)
		case store.KindTest:
			return r.Test(ctx, query)
		default:
			return nil, fmt.Errorf("cssregression: unknown run kind %q", kind)
		}
	}
}

// Run starts a run unless one is already going.
func (s *Service) Run(ctx context.Context, kind, query string, threshold *int) (*Report, error) {
	if s.run == nil {
		return nil, errors.New("cssregression: runs are disabled")
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunBusy
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("cssregression: run requested", "kind", kind, "query", query)
	return s.run(ctx, kind, query, threshold)
}

func (s *Service) requireStore() error {
	if s.store == nil {
		return errors.New("cssregression: run history is disabled")
	}
	return nil
}
