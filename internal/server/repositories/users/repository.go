// Package users contains the credential store contract and its PostgreSQL
// implementation. Repositories translate driver-level failures into the
// sentinel errors of internal/common at this boundary; raw SQL errors never
// reach the account service.
package users

import (
	"context"

	"github.com/dmitrijs2005/userapi/internal/server/models"
)

// Repository is the credential store consumed by the account service.
type Repository interface {
	// Create persists a new user. Duplicate emails fail with
	// common.ErrorConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetUserSalt returns the stored salt for the email, or
	// common.ErrorNotFound.
	GetUserSalt(ctx context.Context, email string) ([]byte, error)

	// IsUserHashValid reports whether the candidate hash matches the
	// stored credential. An unknown email is simply not valid.
	IsUserHashValid(ctx context.Context, email string, hash []byte) (bool, error)

	// GetByEmail and GetByID load the full user record without roles.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)

	// UpdateHashSalt atomically replaces the credential pair for the
	// email. A missing user fails with common.ErrorNotFound.
	UpdateHashSalt(ctx context.Context, email string, hash, salt []byte) error

	// Update applies a partial profile update. Missing user fails with
	// common.ErrorNotFound, email collisions with common.ErrorConflict.
	Update(ctx context.Context, userID string, upd models.UserUpdate) (*models.User, error)

	// List returns one page of users plus whether a further page exists.
	// Empty filters match everything; non-empty ones are partial,
	// case-insensitive matches.
	List(ctx context.Context, limit, offset int, emailFilter, nameFilter string) ([]*models.User, bool, error)
}
