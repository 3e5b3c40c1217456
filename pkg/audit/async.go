package audit

import (
	"context"
	"time"

	"github.com/jience/AwesomeSSOManager/pkg/async"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

// asyncWriteTimeout bounds one background audit write.
const asyncWriteTimeout = 5 * time.Second

// AsyncLogger hands events to the wrapped sink in the background, so slow
// sinks (a database, say) never stretch the login path. Delivery errors
// are logged, not returned.
type AsyncLogger struct {
	inner  Logger
	logger *observability.Logger
}

// NewAsyncLogger wraps a sink with background delivery.
func NewAsyncLogger(inner Logger, logger *observability.Logger) *AsyncLogger {
	return &AsyncLogger{inner: inner, logger: logger}
}

// LogEvent stamps the event and schedules the write. Always returns nil.
func (l *AsyncLogger) LogEvent(_ context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	async.SafeGo(asyncWriteTimeout, "audit write", l.logger, func(ctx context.Context) error {
		return l.inner.LogEvent(ctx, event)
	})
	return nil
}

// Close closes the wrapped sink. Writes already scheduled may still be in
// flight; the sink is expected to tolerate that.
func (l *AsyncLogger) Close() error { return l.inner.Close() }
