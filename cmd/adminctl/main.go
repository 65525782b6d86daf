// Command adminctl bootstraps the first administrator account. It
// prompts on the terminal, applies pending migrations, and registers an
// active user holding the admin role.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/userapi/internal/adminctl"
	"github.com/dmitrijs2005/userapi/internal/common"
	"github.com/dmitrijs2005/userapi/internal/server/config"
	"github.com/dmitrijs2005/userapi/internal/server/models"
	"github.com/dmitrijs2005/userapi/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/userapi/internal/server/services"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	reader := bufio.NewReader(os.Stdin)

	email, err := adminctl.GetSimpleText(reader, "Admin email", os.Stdout)
	if err != nil {
		log.Fatalf("input error: %v", err)
	}

	name, err := adminctl.GetSimpleText(reader, "Display name", os.Stdout)
	if err != nil {
		log.Fatalf("input error: %v", err)
	}

	password, err := adminctl.GetPassword(os.Stdout)
	if err != nil {
		log.Fatalf("input error: %v", err)
	}
	defer common.WipeByteArray(password)

	svc := services.NewAccountService(db, rm, cfg)

	user, err := svc.Register(ctx, models.NewUser{
		Email:    email,
		Name:     name,
		Password: string(password),
		Active:   true,
		Roles:    []string{"admin"},
	})
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			log.Fatalf("user %s already exists", email)
		}
		log.Fatalf("registration error: %v", err)
	}

	fmt.Printf("Admin user created: %s (%s)\n", user.Email, user.ID)
}
