// Package models defines the records exchanged between the repositories,
// the account service, and the transport adapter.
package models

import "time"

// User is the persisted identity record. Salt and Hash are opaque here;
// deriving and checking them is the auth package's job.
type User struct {
	ID        string
	Email     string
	Name      string
	Active    bool
	Salt      []byte
	Hash      []byte
	Roles     []Role
	CreatedAt time.Time
}

// RoleCodes returns the machine codes of the user's assigned roles, in
// assignment order.
func (u *User) RoleCodes() []string {
	codes := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		codes = append(codes, r.Code)
	}
	return codes
}

// NewUser carries the fields accepted at registration. Roles holds role
// codes to assign; unknown codes reject the whole registration.
type NewUser struct {
	Email    string
	Name     string
	Password string
	Active   bool
	Roles    []string
}

// UserUpdate describes a partial profile update. Nil fields are left
// untouched.
type UserUpdate struct {
	Email  *string
	Name   *string
	Active *bool
}

// IsEmpty reports whether the update would change nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.Email == nil && u.Name == nil && u.Active == nil
}

// AuthResult pairs the authenticated user with a freshly issued token.
// It is transient and never persisted.
type AuthResult struct {
	User  *User
	Token string
}
