package dzip

import "log/slog"

// openConfig holds configuration for Open.
type openConfig struct {
	workers int
	logger  *slog.Logger
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// OpenWithWorkers sets the decompression worker count. Zero sizes the pool
// to available hardware parallelism.
func OpenWithWorkers(n int) OpenOption {
	return func(cfg *openConfig) {
		cfg.workers = n
	}
}

// OpenWithLogger sets the logger for diagnostics. Nil discards.
func OpenWithLogger(l *slog.Logger) OpenOption {
	return func(cfg *openConfig) {
		cfg.logger = l
	}
}
