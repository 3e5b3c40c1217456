// Package api implements the HTTP surface of the SSO manager.
//
// # Overview
//
// The server groups handlers by concern, each registering its own routes
// on a shared gorilla/mux router:
//
//   - AuthHandlers: local credential login and the current-user endpoint
//   - SSOHandlers: the browser-facing federated login and callback legs
//   - ProviderHandlers: CRUD over identity provider registrations
//   - DashboardHandlers: aggregate statistics for the admin UI
//
// # Error Model
//
// API endpoints return JSON error bodies of the form {"error": "..."}.
// The SSO callback leg is the exception: a browser arrives there from the
// identity provider, so the handler always answers with a 302 back to the
// frontend, carrying either ?token= or ?error=. Internal error details
// never reach that redirect; they are reduced with sso.SafeErrorMessage.
//
// # Related Packages
//
//   - pkg/sso: the federation coordinator the handlers drive
//   - pkg/middleware: bearer token auth and login rate limiting
//   - pkg/httputil: JSON request/response helpers
package api
