// Package logging provides category-scoped structured logging for moviechat.
// Logs are written to <data dir>/logs/moviechat.log when debug mode is on;
// in production mode every logger is a no-op so the TUI stays silent.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a client subsystem. Each category gets its own named logger
// so log lines can be filtered per concern.
type Category string

const (
	CategoryBoot     Category = "boot"     // startup, config, credential load
	CategoryAuth     Category = "auth"     // login/signup/verify/logout transitions
	CategorySession  Category = "session"  // session registry operations
	CategoryPipeline Category = "pipeline" // chat send/load round-trips
	CategoryAPI      Category = "api"      // raw HTTP calls to the backend
	CategoryStore    Category = "store"    // local archive operations
	CategoryUI       Category = "ui"       // TUI lifecycle events
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Initialize builds the root logger. With debug enabled the logger writes
// JSON lines to dataDir/logs/moviechat.log; otherwise it stays a no-op.
// Safe to call more than once; the last call wins.
func Initialize(debug bool, dataDir string) error {
	if !debug {
		mu.Lock()
		root = zap.NewNop()
		mu.Unlock()
		return nil
	}

	logsDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{filepath.Join(logsDir, "moviechat.log")}
	cfg.ErrorOutputPaths = cfg.OutputPaths

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mu.Lock()
	root = logger
	mu.Unlock()

	Get(CategoryBoot).Info("logging initialized", zap.String("dir", logsDir))
	return nil
}

// Get returns the logger for a category.
func Get(c Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(string(c))
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
