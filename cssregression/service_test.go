package cssregression

import (
	"context"
	"errors"
	"testing"
)

func TestService_RunBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := NewService(nil, func(ctx context.Context, kind, query string, _ *int) (*Report, error) {
		close(started)
		<-release
		return &Report{Kind: kind, Query: query}, nil
	}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), "test", "", nil)
		done <- err
	}()
	<-started

	if _, err := svc.Run(context.Background(), "test", "", nil); !errors.Is(err, ErrRunBusy) {
		t.Fatalf("concurrent run: got %v, want ErrRunBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The slot is free again.
	svc.run = func(ctx context.Context, kind, query string, _ *int) (*Report, error) {
		return &Report{Kind: kind}, nil
	}
	if _, err := svc.Run(context.Background(), "reference", "", nil); err != nil {
		t.Errorf("run after release: %v", err)
	}
}

func TestService_Disabled(t *testing.T) {
	if _, err := NewService(nil, nil, nil).Run(context.Background(), "test", "", nil); err == nil {
		t.Error("expected error without a run function")
	}
}

func TestRunnerFunc_UnknownKind(t *testing.T) {
	h := newHarness(t)
	if _, err := RunnerFunc(h.options())(context.Background(), "other", "", nil); err == nil {
		t.Error("expected error for unknown kind")
	}
}
