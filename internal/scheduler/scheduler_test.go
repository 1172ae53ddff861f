package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAddFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{"descriptor", "@every 5m", false},
		{"five fields", "*/5 * * * *", false},
		{"hourly", "@hourly", false},
		{"six fields rejected", "0 */5 * * * *", true},
		{"garbage", "sometimes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(zap.NewNop())
			err := s.AddFunc("sync", tt.spec, func(context.Context) error { return nil })
			if (err != nil) != tt.wantErr {
				t.Errorf("AddFunc(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestAddFuncDuplicateName(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	noop := func(context.Context) error { return nil }
	if err := s.AddFunc("sync", "@every 1m", noop); err != nil {
		t.Fatalf("AddFunc() error = %v", err)
	}
	if err := s.AddFunc("sync", "@every 2m", noop); err == nil {
		t.Error("Expected error for duplicate job name")
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	if _, ok := s.Next("missing"); ok {
		t.Error("Expected no next run for unknown job")
	}
	if err := s.AddFunc("sync", "@every 1m", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddFunc() error = %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	next, ok := s.Next("sync")
	if !ok {
		t.Fatal("Expected job to be scheduled")
	}
	if until := time.Until(next); until <= 0 || until > time.Minute {
		t.Errorf("Expected next run within a minute, got %v", until)
	}
}

func TestRunRecoversPanicsAndErrors(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	calls := 0
	s.run("failing", func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	s.run("panicking", func(context.Context) error {
		calls++
		panic("boom")
	})
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestStopCancelsJobContext(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	select {
	case <-s.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected job context to be cancelled after parent context ends")
	}
}
