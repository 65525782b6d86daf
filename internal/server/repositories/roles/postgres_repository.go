package roles

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/userapi/internal/common"
	"github.com/dmitrijs2005/userapi/internal/dbx"
	"github.com/dmitrijs2005/userapi/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetUserRoles(ctx context.Context, userID string) ([]models.Role, error) {
	query :=
		`SELECT r.id, r.code, r.name, r.description FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY ur.assigned_at, r.code
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.Role{}
	for rows.Next() {
		role := models.Role{}
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) ListRoles(ctx context.Context, limit, offset int) ([]models.Role, bool, error) {
	query :=
		`SELECT id, code, name, description FROM roles
		 ORDER BY code
		 LIMIT $1 OFFSET $2
		 `

	rows, err := r.db.QueryContext(ctx, query, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Role, 0, limit)
	for rows.Next() {
		role := models.Role{}
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Description); err != nil {
			return nil, false, fmt.Errorf("db error: %w", err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	hasNext := len(result) > limit
	if hasNext {
		result = result[:limit]
	}

	return result, hasNext, nil
}

func (r *PostgresRepository) AssignRole(ctx context.Context, userID, code string) error {
	query :=
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT $1, id FROM roles WHERE code = $2
		 ON CONFLICT DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query, userID, code)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		// Either the code does not exist or the link already did; the
		// caller only cares about the former.
		var exists bool
		err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM roles WHERE code = $1)`, code).Scan(&exists)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return fmt.Errorf("role %q: %w", code, common.ErrorNotFound)
		}
	}

	return nil
}
