package audit

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the interface for audit sinks.
type Logger interface {
	// LogEvent records an event. A zero Timestamp is filled in by the sink.
	LogEvent(ctx context.Context, event *Event) error

	// Close flushes and releases the sink.
	Close() error
}

// WriterLogger writes one JSON line per event through logrus.
type WriterLogger struct {
	log *logrus.Logger
}

// NewWriterLogger creates a JSON audit writer targeting out.
func NewWriterLogger(out io.Writer) *WriterLogger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetLevel(logrus.InfoLevel)
	return &WriterLogger{log: log}
}

// LogEvent writes the event as a structured log line.
func (l *WriterLogger) LogEvent(_ context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	fields := logrus.Fields{
		"audit":      true,
		"event_type": string(event.Type),
		"status":     string(event.Status),
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
	}
	if event.Username != "" {
		fields["username"] = event.Username
	}
	if event.Provider != "" {
		fields["provider"] = event.Provider
	}
	if event.Protocol != "" {
		fields["protocol"] = event.Protocol
	}
	if event.ClientIP != "" {
		fields["client_ip"] = event.ClientIP
	}

	entry := l.log.WithFields(fields)
	if event.Status == EventStatusFailure {
		entry.Warn(event.Message)
	} else {
		entry.Info(event.Message)
	}
	return nil
}

// Close is a no-op; the underlying writer is owned by the caller.
func (l *WriterLogger) Close() error { return nil }

// MultiLogger fans events out to several sinks. The first error wins but
// every sink still sees the event.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger combines sinks into one logger.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// LogEvent dispatches to every sink.
func (l *MultiLogger) LogEvent(ctx context.Context, event *Event) error {
	var firstErr error
	for _, sink := range l.sinks {
		if err := sink.LogEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink.
func (l *MultiLogger) Close() error {
	var firstErr error
	for _, sink := range l.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopLogger discards all events.
type NopLogger struct{}

func (NopLogger) LogEvent(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                           { return nil }
