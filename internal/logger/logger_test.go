package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewProductionLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{"info by default", false, false},
		{"debug when enabled", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := NewProductionLogger("gtd-test", tt.debug)
			if err != nil {
				t.Fatalf("NewProductionLogger() error = %v", err)
			}
			if got := l.Core().Enabled(zapcore.DebugLevel); got != tt.wantDebug {
				t.Errorf("Expected debug enabled %v, got %v", tt.wantDebug, got)
			}
			if !l.Core().Enabled(zapcore.InfoLevel) {
				t.Error("Expected info level to be enabled")
			}
		})
	}
}

func TestNewConsoleLogger(t *testing.T) {
	t.Parallel()

	l, err := NewConsoleLogger(false)
	if err != nil {
		t.Fatalf("NewConsoleLogger() error = %v", err)
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Expected debug disabled")
	}
}

func TestSyncNil(t *testing.T) {
	t.Parallel()
	if err := Sync(nil); err != nil {
		t.Errorf("Expected nil logger sync to succeed, got %v", err)
	}
	if err := Sync(zap.NewNop()); err != nil {
		t.Errorf("Expected nop logger sync to succeed, got %v", err)
	}
}
