package recorder

import (
	"log/slog"
	"time"
)

const (
	// DefaultHalfBuffer is the audio held by one buffer half
	DefaultHalfBuffer = 64 * time.Millisecond
	// DefaultStopTimeout bounds how long Pause and Stop wait for the consumer
	DefaultStopTimeout = 2 * time.Second
)

// Option configures a Recorder
type Option func(*Recorder)

// WithLogger sets the logger; slog.Default() is used otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithHalfBuffer sets the duration of audio per buffer half
func WithHalfBuffer(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.halfBuffer = d
		}
	}
}

// WithStopTimeout bounds the wait for the consumer on Pause and Stop
func WithStopTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// WithByteWisePatch finalizes headers with single-byte writes
func WithByteWisePatch(enabled bool) Option {
	return func(r *Recorder) {
		r.byteWise = enabled
	}
}
