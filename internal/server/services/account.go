// Package services contains the server-side business logic. This file
// implements AccountService, the stateless facade orchestrating the
// credential store, the role store, and the token authority to provide
// registration, authentication, password reset, profile update, and
// listing.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/userapi/internal/common"
	"github.com/dmitrijs2005/userapi/internal/dbx"
	"github.com/dmitrijs2005/userapi/internal/server/auth"
	"github.com/dmitrijs2005/userapi/internal/server/config"
	"github.com/dmitrijs2005/userapi/internal/server/models"
	"github.com/dmitrijs2005/userapi/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const defaultPageSize = 20

// AccountService is stateless per call; all state lives in the store.
// Store failures are mapped to the sentinel errors of internal/common at
// this boundary, so callers only ever see the public taxonomy.
type AccountService struct {
	db                    *sql.DB
	repomanager           repomanager.RepositoryManager
	jwtSecret             []byte
	tokenValidityDuration time.Duration
	requireActiveUser     bool
}

// NewAccountService constructs an AccountService using repositories and
// server config.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AccountService {
	return &AccountService{
		db:                    db,
		repomanager:           m,
		jwtSecret:             []byte(cfg.SecretKey),
		tokenValidityDuration: cfg.TokenValidityDuration,
		requireActiveUser:     cfg.RequireActiveUser,
	}
}

// Authenticate verifies the password for the email and, on success,
// returns the user payload (roles attached) together with a fresh token.
//
// An unknown email fails with common.ErrorNotFound while a wrong password
// fails with common.ErrorUnauthorized; the transport adapter collapses
// both on the wire so account existence is not leaked to clients.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.AuthResult, error) {
	repo := s.repomanager.Users(s.db)

	salt, err := repo.GetUserSalt(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("user %s: %w", email, common.ErrorNotFound)
		}
		return nil, common.ErrorInternal
	}

	hash := auth.GenerateHash(password, salt)

	valid, err := repo.IsUserHashValid(ctx, email, hash)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if !valid {
		return nil, common.ErrorUnauthorized
	}

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if s.requireActiveUser && !user.Active {
		return nil, common.ErrorUnauthorized
	}

	user.Roles, err = s.repomanager.Roles(s.db).GetUserRoles(ctx, user.ID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	token, err := auth.GenerateToken(auth.PayloadFromUser(user), s.jwtSecret, s.tokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	return &models.AuthResult{User: user, Token: token}, nil
}

// ResetPassword sets a new credential pair for the email. The salt is
// regenerated so the new hash is never comparable to the old one. Update
// and re-read run in one transaction, so a concurrently deleted user
// fails the whole call with common.ErrorUnprocessable instead of
// silently succeeding against missing state.
func (s *AccountService) ResetPassword(ctx context.Context, email, newPassword string) (*models.User, error) {
	salt := auth.GenerateSalt()
	hash := auth.GenerateHash(newPassword, salt)

	var user *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		if err := repo.UpdateHashSalt(ctx, email, hash, salt); err != nil {
			return err
		}

		var err error
		user, err = repo.GetByEmail(ctx, email)
		return err
	})

	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("user %s: %w", email, common.ErrorUnprocessable)
		}
		return nil, common.ErrorInternal
	}

	return user, nil
}

// Register creates a new user with a fresh salt and hash, assigning the
// requested roles in the same transaction. A duplicate email fails with
// common.ErrorConflict; an unknown role code fails with
// common.ErrorNotFound and rolls the user back.
func (s *AccountService) Register(ctx context.Context, newUser models.NewUser) (*models.User, error) {
	salt := auth.GenerateSalt()
	hash := auth.GenerateHash(newUser.Password, salt)

	user := &models.User{
		ID:     uuid.NewString(),
		Email:  newUser.Email,
		Name:   newUser.Name,
		Active: newUser.Active,
		Salt:   salt,
		Hash:   hash,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		user = created

		rolesRepo := s.repomanager.Roles(tx)
		for _, code := range newUser.Roles {
			if err := rolesRepo.AssignRole(ctx, user.ID, code); err != nil {
				return err
			}
		}

		if len(newUser.Roles) > 0 {
			user.Roles, err = rolesRepo.GetUserRoles(ctx, user.ID)
			return err
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, common.ErrorConflict) || errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, common.ErrorInternal
	}

	return user, nil
}

// Update applies a partial profile update to the user with the given ID.
func (s *AccountService) Update(ctx context.Context, userID string, upd models.UserUpdate) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).Update(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}

// ListUsers returns one page of users plus whether a further page exists.
// Filters are optional partial matches on email and name.
func (s *AccountService) ListUsers(ctx context.Context, limit, offset int, emailFilter, nameFilter string) ([]*models.User, bool, error) {
	limit, offset = clampPage(limit, offset)

	users, hasNext, err := s.repomanager.Users(s.db).List(ctx, limit, offset, emailFilter, nameFilter)
	if err != nil {
		return nil, false, common.ErrorInternal
	}
	return users, hasNext, nil
}

// ListRoles returns one page of roles plus whether a further page exists.
func (s *AccountService) ListRoles(ctx context.Context, limit, offset int) ([]models.Role, bool, error) {
	limit, offset = clampPage(limit, offset)

	roles, hasNext, err := s.repomanager.Roles(s.db).ListRoles(ctx, limit, offset)
	if err != nil {
		return nil, false, common.ErrorInternal
	}
	return roles, hasNext, nil
}

// GetUserInformation loads one user by ID, optionally hydrating roles.
func (s *AccountService) GetUserInformation(ctx context.Context, userID string, withRoles bool) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, common.ErrorInternal
	}

	if withRoles {
		user.Roles, err = s.repomanager.Roles(s.db).GetUserRoles(ctx, userID)
		if err != nil {
			return nil, common.ErrorInternal
		}
	}

	return user, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
