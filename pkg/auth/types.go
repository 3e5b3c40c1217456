package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role represents a user's role
type Role string

const (
	RoleAdmin Role = "admin" // Full access, including provider management
	RoleUser  Role = "user"  // Default role for JIT-provisioned accounts
)

// User represents a local account
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`

	// HasLocalCredential is false for accounts created by federated login.
	// Such accounts have no usable password and must not pass the
	// credential login path.
	HasLocalCredential bool `json:"hasLocalCredential"`

	// PasswordHash is the bcrypt hash of the local password. Never exposed.
	PasswordHash string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}

// Storage sentinel errors. Implementations of UserStore must return these
// (possibly wrapped) so callers can use errors.Is.
var (
	// ErrUserNotFound indicates no user matched the lookup key.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates a uniqueness violation on username or email.
	ErrUserExists = errors.New("user already exists")
)

// UserStore is the persistence contract for local accounts. Username and
// email uniqueness is enforced by the store (unique index or equivalent
// atomic check-and-insert), not by callers.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)

	// CreateUser persists a new user, returning ErrUserExists when the
	// username or email is already taken.
	CreateUser(ctx context.Context, user *User) error

	UpdateUser(ctx context.Context, user *User) error
}

// SetPassword hashes and stores a local password, marking the account as
// credential-capable.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	u.HasLocalCredential = true
	return nil
}

// CheckPassword verifies a local password. Federation-only accounts always
// fail, regardless of input.
func (u *User) CheckPassword(password string) bool {
	if !u.HasLocalCredential || u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
