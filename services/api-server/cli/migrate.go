package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Connect to PostgreSQL and apply the schema for projects, tasks and task history.

Reads the DSN from --postgres-dsn flag, POSTGRES_DSN env var, or config file.
Safe to run repeatedly.`,
	RunE: runMigrate,
}

func runMigrate(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, viper.GetString("postgres_dsn"))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	err = migrations.Apply(ctx, pool, func(name string) {
		fmt.Printf("applied %s\n", name)
	})
	if err != nil {
		return err
	}
	fmt.Println("migrations complete")
	return nil
}
