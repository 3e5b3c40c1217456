// Package auth provides the local user model and session token management
// for the SSO manager.
//
// # Overview
//
// Every successful login, local credentials or any federated protocol,
// ends with a session token minted here. The token is a signed, compact,
// self-contained credential carrying the username, a snapshot of the user's
// role and a 24 hour expiry. Verification re-fetches the live user so that
// deleted accounts are rejected even while their token is otherwise valid.
//
// # Federated accounts
//
// Accounts created by just-in-time provisioning carry no usable password.
// Instead of storing a random placeholder secret, HasLocalCredential is
// false, and the credential login path rejects such accounts
// deterministically.
//
// # Error model
//
// Verify failures are reported as *TokenError with a Kind that lets callers
// distinguish "log in again" (expired) from "this token was never valid"
// (malformed, bad signature) from "session revoked" (user no longer exists).
//
// # Related Packages
//
//   - pkg/sso: federation flow that feeds users into the issuer
//   - pkg/storage: concrete UserStore implementations
package auth
