package sso

import (
	"net/http"
)

// retryTransport retries a request once when the transport itself fails
// (connection refused, reset, EOF mid-handshake). Responses that arrived,
// including 4xx and 5xx, are never retried: the identity provider answered
// and its answer stands.
type retryTransport struct {
	base http.RoundTripper
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	retry, replayable := cloneForRetry(req)

	resp, err := t.base.RoundTrip(req)
	if err == nil || !replayable {
		return resp, err
	}
	if req.Context().Err() != nil {
		// The caller gave up; don't burn another attempt.
		return nil, err
	}
	return t.base.RoundTrip(retry)
}

// cloneForRetry prepares a second attempt up front, before the first one
// consumes the body. Requests with a body that cannot be rewound are not
// replayable.
func cloneForRetry(req *http.Request) (*http.Request, bool) {
	if req.Body != nil && req.GetBody == nil {
		return nil, false
	}
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, false
		}
		clone.Body = body
	}
	return clone, true
}

// withRetry wraps a client so transient identity provider failures get one
// more attempt before surfacing as an authentication error. The caller's
// client is left untouched.
func withRetry(client *http.Client) *http.Client {
	wrapped := *client
	base := wrapped.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped.Transport = &retryTransport{base: base}
	return &wrapped
}
