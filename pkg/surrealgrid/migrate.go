package surrealgrid

import (
	"context"
	"fmt"
)

// Migrate creates or updates the schema of the configured store.
// It is safe to run repeatedly and never moves data.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.log.Info("running database migrations", "backend", a.config.Backend)
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info("migrations completed")
	return nil
}
