// Package async provides a safe wrapper for fire-and-forget goroutines:
// panic recovery, a timeout, and structured error logging.
//
// Use SafeGo instead of a bare `go func()` for side work that must not
// block or crash the request path, such as audit writes:
//
//	async.SafeGo(5*time.Second, "audit write", logger, func(ctx context.Context) error {
//		return store.LogEvent(ctx, event)
//	})
package async
