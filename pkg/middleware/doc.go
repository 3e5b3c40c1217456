// Package middleware provides the HTTP middleware used by the API server:
// bearer-token authentication backed by the session issuer, role
// enforcement, and a Redis-backed rate limit for the login endpoints.
package middleware
