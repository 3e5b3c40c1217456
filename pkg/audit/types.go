package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	EventTypeLocalLogin       EventType = "auth.login"
	EventTypeLocalLoginFailed EventType = "auth.login_failed"
	EventTypeSSOLogin         EventType = "sso.login"
	EventTypeSSOLoginFailed   EventType = "sso.login_failed"
	EventTypeProviderCreate   EventType = "provider.create"
	EventTypeProviderUpdate   EventType = "provider.update"
	EventTypeProviderDelete   EventType = "provider.delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is a single audit log entry.
type Event struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor and subject. Username may be empty on failed attempts where
	// the identity never resolved.
	Username string `json:"username,omitempty"`
	Provider string `json:"provider,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	ClientIP string `json:"client_ip,omitempty"`

	// Message is the sanitized, caller-visible reason.
	Message string `json:"message,omitempty"`
}
