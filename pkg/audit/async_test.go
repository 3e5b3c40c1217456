package audit

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

type slowRecordingLogger struct {
	mu     sync.Mutex
	events []*Event
}

func (l *slowRecordingLogger) LogEvent(_ context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *slowRecordingLogger) Close() error { return nil }

func (l *slowRecordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func TestAsyncLoggerDeliversInBackground(t *testing.T) {
	sink := &slowRecordingLogger{}
	logger := NewAsyncLogger(sink, observability.NewLogger(observability.ErrorLevel, io.Discard))

	err := logger.LogEvent(context.Background(), &Event{
		Type:   EventTypeSSOLogin,
		Status: EventStatusSuccess,
	})
	require.NoError(t, err, "submission never fails")

	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.False(t, sink.events[0].Timestamp.IsZero(), "events are stamped before handoff")
}
