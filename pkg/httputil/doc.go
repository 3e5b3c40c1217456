// Package httputil provides small helpers for consistent JSON request and
// response handling across the API handlers.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "Missing required fields")
//	httputil.WriteNotFoundError(w, "Provider not found")
//
// # Request Parsing
//
//	var req loginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: authentication and rate limiting middleware
//   - pkg/api: the HTTP handlers built on these helpers
package httputil
