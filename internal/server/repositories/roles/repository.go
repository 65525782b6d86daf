// Package roles contains the role store contract and its PostgreSQL
// implementation. Role lifecycle lives entirely in the store; the core
// only reads role codes and records assignments.
package roles

import (
	"context"

	"github.com/dmitrijs2005/userapi/internal/server/models"
)

// Repository is the role store consumed by the account service.
type Repository interface {
	// GetUserRoles returns the roles assigned to the user, in
	// assignment order. A user without assignments gets an empty list.
	GetUserRoles(ctx context.Context, userID string) ([]models.Role, error)

	// ListRoles returns one page of roles plus whether a further page
	// exists.
	ListRoles(ctx context.Context, limit, offset int) ([]models.Role, bool, error)

	// AssignRole links the user to the role with the given code.
	// Unknown codes fail with common.ErrorNotFound; repeated
	// assignments are no-ops.
	AssignRole(ctx context.Context, userID, code string) error
}
