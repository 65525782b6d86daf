// Package repomanager vends repository implementations bound to a database
// handle or transaction, and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/userapi/internal/dbx"
	"github.com/dmitrijs2005/userapi/internal/server/repositories/roles"
	"github.com/dmitrijs2005/userapi/internal/server/repositories/users"
)

// RepositoryManager lets the account service obtain repositories bound to
// either the shared connection pool or a transaction it controls.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Roles(db dbx.DBTX) roles.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
