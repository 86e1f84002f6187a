package dzip

import "log/slog"

// packConfig holds configuration for Pack.
type packConfig struct {
	workers  int
	logger   *slog.Logger
	progress ProgressFunc
}

// PackOption configures Pack.
type PackOption func(*packConfig)

// PackWithWorkers sets the compression worker count. Zero sizes the pool to
// available hardware parallelism.
func PackWithWorkers(n int) PackOption {
	return func(cfg *packConfig) {
		cfg.workers = n
	}
}

// PackWithLogger sets the logger for diagnostics. Nil discards.
func PackWithLogger(l *slog.Logger) PackOption {
	return func(cfg *packConfig) {
		cfg.logger = l
	}
}

// PackWithProgress registers a progress callback.
func PackWithProgress(fn ProgressFunc) PackOption {
	return func(cfg *packConfig) {
		cfg.progress = fn
	}
}
