package surrealgrid

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// Seed creates the demo user if missing, then a base and a table holding cmd.Count
// generated records. It migrates first so it works against an empty database.
func (a *App) Seed(ctx context.Context, cmd *SeedCommand) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		name, _, _ := strings.Cut(email, "@")
		user = &models.User{Email: email, Name: name}
		if err := a.store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		a.log.Info("created user", "email", email, "user_id", user.ID)
	}

	base := &models.Base{Name: "Demo", OwnerID: user.ID}
	if err := a.store.CreateBase(ctx, base); err != nil {
		return fmt.Errorf("failed to create base: %w", err)
	}
	table := &models.Table{Name: cmd.Table, BaseID: base.ID}
	if err := a.store.CreateTable(ctx, table); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	remaining := cmd.Count
	for remaining > 0 {
		batch := min(remaining, store.MaxBulkCount)
		n, err := a.store.CreateRecordsBulk(ctx, table.ID, batch, a.generator)
		remaining -= n
		if err != nil {
			return fmt.Errorf("failed to generate records (%d inserted): %w", cmd.Count-remaining, err)
		}
		if n == 0 {
			break
		}
	}

	a.log.Info("seeded table",
		"base_id", base.ID,
		"table_id", table.ID,
		"records", cmd.Count,
	)
	return nil
}
