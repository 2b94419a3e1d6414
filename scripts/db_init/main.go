package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	dbfs "github.com/garnizeh/taosdlc/db"
	"github.com/garnizeh/taosdlc/internal/config"
	"github.com/garnizeh/taosdlc/internal/db"
	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/repository/sqlite"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config YAML file")
		adminEmail = flag.String("admin-email", "", "Create an admin user with this email")
		adminUser  = flag.String("admin-username", "admin", "Username of the admin user")
		adminPass  = flag.String("admin-password", "", "Password of the admin user")
	)
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	// run migrations and seed the phase schemas
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Migration runner error: %v\n", err)
		os.Exit(1)
	}

	if *adminEmail != "" {
		if err := createAdmin(ctx, sqlite.New(database, nil), *adminEmail, *adminUser, *adminPass); err != nil {
			fmt.Fprintf(os.Stderr, "Admin creation error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Admin user %s created.\n", *adminUser)
	}

	fmt.Println("Database initialized successfully.")
}

func createAdmin(ctx context.Context, repo *sqlite.SQLiteRepo, email, username, password string) error {
	if len(password) < 6 {
		return fmt.Errorf("admin password must have at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = repo.CreateUser(ctx, &models.User{
		Email:          email,
		Username:       username,
		FullName:       "Administrator",
		Role:           models.RoleAdmin,
		HashedPassword: string(hash),
	})
	return err
}
