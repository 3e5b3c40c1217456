// Package sso implements federated login against external identity
// providers over OIDC, plain OAuth2, SAML 2.0 and CAS.
//
// # Overview
//
// A provider is a stored configuration record (pkg/storage) naming one of
// the four protocols plus an opaque string map of protocol settings. Each
// protocol has a Handler that can build the redirect URL for the login leg
// and turn the provider's callback parameters into a normalized SSOUser.
// The Coordinator drives the two legs end to end: resolve the provider,
// pick the handler, authenticate, provision a local account just in time
// and mint a session token via pkg/auth.
//
// # Relay state
//
// Login URLs carry an HMAC-signed, timestamped nonce (OAuth `state`, SAML
// `RelayState`) minted by StateSigner and verified on the callback leg, so
// a callback cannot be replayed outside a short window or fabricated
// without the signing secret. CAS has no equivalent channel; its ticket is
// single-use at the CAS server.
//
// # Error model
//
// Handlers and the coordinator report failures as *ConfigurationError
// (operator-fixable: unknown provider, disabled provider, missing config
// keys) or *AuthenticationError (this login attempt failed). Raw identity
// provider responses never reach callers; SafeErrorMessage produces the
// string that may be shown to a browser.
//
// # Related Packages
//
//   - pkg/auth: local accounts and session tokens
//   - pkg/storage: provider and user persistence
//   - pkg/api: HTTP endpoints wrapping the coordinator
package sso
