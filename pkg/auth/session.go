package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is how long a session token remains valid after issuance.
const SessionTTL = 24 * time.Hour

// TokenErrorKind classifies session token verification failures.
type TokenErrorKind string

const (
	TokenMissing          TokenErrorKind = "missing"
	TokenMalformed        TokenErrorKind = "malformed"
	TokenExpiredSignature TokenErrorKind = "expiredSignature"
	TokenInvalidSignature TokenErrorKind = "invalidSignature"
	TokenUserGone         TokenErrorKind = "userNoLongerExists"
)

// TokenError reports why a session token was rejected.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("token %s", e.Kind)
}

func (e *TokenError) Unwrap() error { return e.Err }

// Message returns a short, safe description suitable for an HTTP 401 body.
func (e *TokenError) Message() string {
	switch e.Kind {
	case TokenMissing:
		return "token is missing"
	case TokenExpiredSignature:
		return "token has expired"
	case TokenUserGone:
		return "user no longer exists"
	default:
		return "token is invalid"
	}
}

// SessionClaims is the claim set carried by a session token. Role is a
// snapshot at issuance; a role change takes effect on the next login.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserFinder is the subset of UserStore the issuer needs to re-fetch the
// live user during verification.
type UserFinder interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// SessionIssuer mints and verifies session tokens. Tokens are HS256-signed
// JWTs with subject=username; the signing secret is process-wide deployment
// configuration. Issuance and verification are pure apart from the live
// user re-fetch in Verify.
type SessionIssuer struct {
	secret []byte
	users  UserFinder
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates a session issuer with the default 24h TTL.
func NewSessionIssuer(secret []byte, users UserFinder) *SessionIssuer {
	return &SessionIssuer{
		secret: secret,
		users:  users,
		ttl:    SessionTTL,
		now:    time.Now,
	}
}

// WithClock overrides the issuer's clock. Intended for tests.
func (s *SessionIssuer) WithClock(now func() time.Time) *SessionIssuer {
	s.now = now
	return s
}

// Issue mints a session token for the user. The embedded role is the user's
// role at this moment, not a live reference.
func (s *SessionIssuer) Issue(user *User) (string, error) {
	issuedAt := s.now()
	claims := SessionClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks a session token and returns the live user it identifies.
// Verification failures are always a *TokenError; storage infrastructure
// failures are returned as-is. The returned user's role is the current one
// from storage; the role claim inside the token is historical.
func (s *SessionIssuer) Verify(ctx context.Context, tokenString string) (*User, error) {
	if tokenString == "" {
		return nil, &TokenError{Kind: TokenMissing}
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, &TokenError{Kind: TokenExpiredSignature, Err: err}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, &TokenError{Kind: TokenInvalidSignature, Err: err}
		default:
			return nil, &TokenError{Kind: TokenMalformed, Err: err}
		}
	}

	user, err := s.users.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, &TokenError{Kind: TokenUserGone, Err: err}
		}
		return nil, fmt.Errorf("failed to fetch user %q: %w", claims.Subject, err)
	}
	return user, nil
}

// Claims parses a token without touching storage. Useful for fast-path
// checks where role freshness is not required.
func (s *SessionIssuer) Claims(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, &TokenError{Kind: TokenMissing}
	}
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, &TokenError{Kind: TokenExpiredSignature, Err: err}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, &TokenError{Kind: TokenInvalidSignature, Err: err}
		default:
			return nil, &TokenError{Kind: TokenMalformed, Err: err}
		}
	}
	return claims, nil
}
