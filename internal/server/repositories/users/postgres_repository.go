package users

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/userapi/internal/common"
	"github.com/dmitrijs2005/userapi/internal/dbx"
	"github.com/dmitrijs2005/userapi/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// PostgresRepository implements Repository over a dbx.DBTX, so the same
// code serves both plain connections and service-level transactions.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, email, name, active, salt, hash)
         VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Name, user.Active, user.Salt, user.Hash).Scan(&user.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetUserSalt(ctx context.Context, email string) ([]byte, error) {
	query :=
		`SELECT salt FROM users
		 WHERE email = $1
		 `

	var salt []byte
	err := r.db.QueryRowContext(ctx, query, email).Scan(&salt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return salt, nil
}

func (r *PostgresRepository) IsUserHashValid(ctx context.Context, email string, hash []byte) (bool, error) {
	query :=
		`SELECT hash FROM users
		 WHERE email = $1
		 `

	var stored []byte
	err := r.db.QueryRowContext(ctx, query, email).Scan(&stored)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}

	return subtle.ConstantTimeCompare(stored, hash) == 1, nil
}

const userColumns = `id, email, name, active, salt, hash, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Active, &user.Salt, &user.Hash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateHashSalt(ctx context.Context, email string, hash, salt []byte) error {
	query :=
		`UPDATE users SET hash = $2, salt = $3
		 WHERE email = $1
		 `

	res, err := r.db.ExecContext(ctx, query, email, hash, salt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID string, upd models.UserUpdate) (*models.User, error) {
	if upd.IsEmpty() {
		return r.GetByID(ctx, userID)
	}

	set := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if upd.Email != nil {
		args = append(args, *upd.Email)
		set = append(set, fmt.Sprintf("email = $%d", len(args)))
	}
	if upd.Name != nil {
		args = append(args, *upd.Name)
		set = append(set, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Active != nil {
		args = append(args, *upd.Active)
		set = append(set, fmt.Sprintf("active = $%d", len(args)))
	}

	args = append(args, userID)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns,
		strings.Join(set, ", "), len(args))

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&user.ID, &user.Email, &user.Name, &user.Active, &user.Salt, &user.Hash, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if isUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int, emailFilter, nameFilter string) ([]*models.User, bool, error) {
	query :=
		`SELECT id, email, name, active, created_at FROM users
		 WHERE ($1 = '' OR email ILIKE '%' || $1 || '%')
		   AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		 ORDER BY created_at, id
		 LIMIT $3 OFFSET $4
		 `

	// One extra row tells whether a further page exists.
	rows, err := r.db.QueryContext(ctx, query, emailFilter, nameFilter, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0, limit)
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.Active, &user.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("db error: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	hasNext := len(users) > limit
	if hasNext {
		users = users[:limit]
	}

	return users, hasNext, nil
}
