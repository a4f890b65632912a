package main

import (
	"context"
	"fmt"
	"os"
	"time"

	dbfs "github.com/StoryBB/StoryBB-sub005/db"
	"github.com/StoryBB/StoryBB-sub005/internal/auth"
	"github.com/StoryBB/StoryBB-sub005/internal/config"
	"github.com/StoryBB/StoryBB-sub005/internal/db"
	"github.com/StoryBB/StoryBB-sub005/internal/repository/sqlite"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Creates an administrator when STORYBB_ADMIN_NAME, STORYBB_ADMIN_EMAIL and
// STORYBB_ADMIN_PASSWORD are all set and the name is free.
func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig("")
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

	// run migrations and seed using internal/db.Migrate
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Migration runner error: %v\n", err)
		os.Exit(1)
	}

	name, email, password := os.Getenv("STORYBB_ADMIN_NAME"), os.Getenv("STORYBB_ADMIN_EMAIL"), os.Getenv("STORYBB_ADMIN_PASSWORD")
	if name != "" && email != "" && password != "" {
		if err := createAdmin(ctx, sqlite.New(database, nil), name, email, password, cfg.DefaultLanguage); err != nil {
			fmt.Fprintf(os.Stderr, "Admin creation error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Database initialized successfully.")
}

func createAdmin(ctx context.Context, repo *sqlite.SQLiteRepo, name, email, password, language string) error {
	taken, err := repo.MemberNameTaken(ctx, name, 0)
	if err != nil {
		return err
	}
	if taken {
		fmt.Printf("Administrator %q already exists.\n", name)
		return nil
	}
	if !auth.ValidEmail(email) {
		return fmt.Errorf("invalid email %q", email)
	}
	if len(password) < auth.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	m := &models.Member{
		Name:         name,
		RealName:     name,
		Email:        email,
		PasswordHash: hash,
		PrimaryGroup: models.GroupAdministrator,
		Activated:    true,
		Registered:   time.Now().UTC().Unix(),
		Language:     language,
	}
	if _, _, err := repo.CreateMember(ctx, m); err != nil {
		return err
	}
	fmt.Printf("Administrator %q created with id %d.\n", name, m.ID)
	return nil
}
