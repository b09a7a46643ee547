package cli

import (
	"context"
	"fmt"

	"coldtrack-sync/common/database"
	"coldtrack-sync/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// UsersCmd mirrors identity provider accounts once
func UsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "Sync identity provider accounts into usuarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, _ *runtime, svc *service.SyncService) error {
				report, err := svc.SyncUsers(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Users: %d found, %d created, %d updated, %d errored\n",
					report.Found, report.Created, report.Updated, report.Errored)
				return nil
			})
		},
	}
}

// MigrateCmd applies the embedded warehouse migrations
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply warehouse schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			db, err := database.NewPostgresDB(&rt.cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close(db)

			rt.logger.Info("Applying migrations")
			database.Migrate(db)
			rt.logger.Info("Migrations applied", zap.String("database", rt.cfg.Database.Database))
			return nil
		},
	}
}
