package async

import (
	"context"
	"time"

	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

// SafeGo executes fn in a goroutine with panic recovery, a timeout and
// error logging. The task gets a fresh context: it deliberately outlives
// the request that spawned it.
func SafeGo(timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}
