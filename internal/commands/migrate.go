package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/screener-back/internal/database"
)

var (
	migrationPath string
	dryRun        bool
	rollback      bool
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration management",
	Long: `Manage the MySQL schema of the screener.

Examples:
  screener-back migrate up                    # Run all pending migrations
  screener-back migrate down --rollback       # Rollback last migration
  screener-back migrate status                # Show migration status
  screener-back migrate create add_new_table  # Create new migration file`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(applyMigrations)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the last applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(rollbackMigration)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(showMigrationStatus)
	},
}

var migrateCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new migration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := database.NewMigrationFile(migrationPath, args[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("✅ Created migration file: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateCreateCmd)

	migrateCmd.PersistentFlags().StringVarP(&migrationPath, "path", "p", "./migrations", "Path to migration files")
	migrateCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would be executed without running")

	migrateDownCmd.Flags().BoolVar(&rollback, "rollback", false, "Confirm rollback operation")
}

// withMigrator opens a plain connection; migrations run before the schema
// the application needs exists
func withMigrator(fn func(ctx context.Context, m *database.Migrator) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.GetMySQLDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	if err := ping(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return fn(ctx, database.NewMigrator(db, migrationPath))
}

func ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func applyMigrations(ctx context.Context, m *database.Migrator) error {
	migrations, err := m.Status(ctx)
	if err != nil {
		return err
	}

	var pending []database.Migration
	for _, migration := range migrations {
		if !migration.Applied {
			pending = append(pending, migration)
		}
	}

	if len(pending) == 0 {
		fmt.Println("✅ No pending migrations")
		return nil
	}

	fmt.Printf("Found %d pending migration(s)\n\n", len(pending))

	for _, migration := range pending {
		fmt.Printf("Applying migration: %s - %s\n", migration.Version, migration.Name)

		if dryRun {
			fmt.Printf("  [DRY RUN] Would execute:\n%s\n\n", migration.UpSQL)
			continue
		}

		if err := m.Apply(ctx, migration); err != nil {
			return err
		}
		fmt.Printf("  ✅ Applied successfully\n\n")
	}

	if !dryRun {
		fmt.Println("🎉 All migrations applied successfully!")
	}
	return nil
}

func rollbackMigration(ctx context.Context, m *database.Migrator) error {
	migrations, err := m.Status(ctx)
	if err != nil {
		return err
	}

	var last *database.Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if migrations[i].Applied {
			last = &migrations[i]
			break
		}
	}

	if last == nil {
		fmt.Println("❌ No migrations to rollback")
		return nil
	}

	fmt.Printf("Rolling back migration: %s - %s\n", last.Version, last.Name)

	if dryRun {
		fmt.Printf("  [DRY RUN] Would execute:\n%s\n", last.DownSQL)
		return nil
	}
	if !rollback {
		fmt.Println("❌ Rollback requires --rollback flag for confirmation")
		return nil
	}

	if err := m.Rollback(ctx, *last); err != nil {
		return err
	}
	fmt.Printf("  ✅ Rolled back successfully\n")
	return nil
}

func showMigrationStatus(ctx context.Context, m *database.Migrator) error {
	migrations, err := m.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	fmt.Printf("%-20s %-30s %-10s %s\n", "Version", "Name", "Status", "Applied At")
	fmt.Println(strings.Repeat("-", 80))

	for _, migration := range migrations {
		status := "❌ Pending"
		appliedAt := "-"
		if migration.Applied {
			status = "✅ Applied"
			if migration.AppliedAt != nil {
				appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Printf("%-20s %-30s %-10s %s\n", migration.Version, migration.Name, status, appliedAt)
	}
	return nil
}
