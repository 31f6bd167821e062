// Package directory defines the user directory the session engine consults
// and updates. The engine never owns user records; it reads them through
// [Directory] and writes only the fields a flow is allowed to change.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("directory: user not found")
	// ErrDuplicate is returned when CreateUser collides with an existing identifier.
	ErrDuplicate = errors.New("directory: user already exists")
)

// ProviderLocal marks accounts that sign in with a password held here.
// Any other provider value is a federated account.
const ProviderLocal = "local"

// UserRecord is the directory's view of an account.
type UserRecord struct {
	ID            string
	Email         string
	Username      string
	PhoneNumber   string
	PasswordHash  string
	Provider      string
	Active        bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Local reports whether the account authenticates with a local password.
func (u *UserRecord) Local() bool {
	return u.Provider == "" || u.Provider == ProviderLocal
}

// Identifiers returns the non-empty identifiers of the record.
func (u *UserRecord) Identifiers() []string {
	out := make([]string, 0, 3)
	for _, v := range []string{u.Email, u.Username, u.PhoneNumber} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CreateInput carries the fields of a new account. Identifiers are
// expected to be normalized already.
type CreateInput struct {
	Email        string
	Username     string
	PhoneNumber  string
	PasswordHash string
	Provider     string
	Active       bool
}

// Patch lists the fields UpdateUserByID may change. Nil fields are kept.
type Patch struct {
	PasswordHash  *string
	EmailVerified *bool
	Active        *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.PasswordHash == nil && p.EmailVerified == nil && p.Active == nil
}

// Directory is implemented by the application's user store.
type Directory interface {
	// FindByIdentifier looks a user up by email, username or phone number.
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	CreateUser(ctx context.Context, in CreateInput) (*UserRecord, error)
	UpdateUserByID(ctx context.Context, id string, patch Patch) (*UserRecord, error)
}

// Bool returns a pointer to v, for building a [Patch].
func Bool(v bool) *bool { return &v }

// String returns a pointer to v, for building a [Patch].
func String(v string) *string { return &v }
