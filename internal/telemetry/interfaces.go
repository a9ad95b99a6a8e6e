package telemetry

import "log"

// Logger exposes the logging capabilities required by the client components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// Metrics exposes the telemetry methods required by the client components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// Multi fans every update out to each non-nil backend.
func Multi(backends ...Metrics) Metrics {
	kept := make(multiMetrics, 0, len(backends))
	for _, m := range backends {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return kept
}

type multiMetrics []Metrics

func (m multiMetrics) Add(key string, delta uint64) {
	for _, backend := range m {
		backend.Add(key, delta)
	}
}

func (m multiMetrics) Store(key string, value uint64) {
	for _, backend := range m {
		backend.Store(key, value)
	}
}

type nopMetrics struct{}

func (nopMetrics) Add(string, uint64)   {}
func (nopMetrics) Store(string, uint64) {}

// NopMetrics discards every update.
func NopMetrics() Metrics {
	return nopMetrics{}
}
