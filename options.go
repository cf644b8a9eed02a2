package veritas

import (
	"log/slog"
	"runtime"

	"github.com/hupe1980/veritas/codec"
	"github.com/hupe1980/veritas/internal/fs"
	"github.com/hupe1980/veritas/manifest"
)

type options struct {
	codec            codec.Codec
	fs               fs.FileSystem
	validation       manifest.Mode
	fetchConcurrency int
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open and NewBuilder behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. codec-specific constructor variants).
type Option func(*options)

// WithCodec configures the codec used for manifest and document metadata
// serialization.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithFileSystem configures the filesystem abstraction used for all artifact
// IO. The default is the local filesystem; tests inject fault-injecting
// implementations here.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fs = fsys
	}
}

// WithValidation selects the validation mode applied when opening an
// artifact. The default is manifest.ModeNormal.
//
// Strict mode recomputes every file checksum and deep-verifies the chunk
// store; expect open latency proportional to artifact size.
func WithValidation(mode manifest.Mode) Option {
	return func(o *options) {
		o.validation = mode
	}
}

// WithFetchConcurrency bounds the number of goroutines used by FetchChunks.
// Values below 1 fall back to GOMAXPROCS.
func WithFetchConcurrency(n int) Option {
	return func(o *options) {
		o.fetchConcurrency = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &veritas.BasicMetricsCollector{}
//	a, _ := veritas.Open(dir, veritas.WithMetricsCollector(metrics))
//	// ... use a ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.RetrieveCount, stats.RetrieveAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := veritas.NewJSONLogger(slog.LevelInfo)
//	a, _ := veritas.Open(dir, veritas.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		fs:               fs.Default,
		validation:       manifest.ModeNormal,
		fetchConcurrency: runtime.GOMAXPROCS(0),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.fetchConcurrency < 1 {
		o.fetchConcurrency = runtime.GOMAXPROCS(0)
	}
	return o
}
