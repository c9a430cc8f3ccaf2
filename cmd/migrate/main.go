package main

import (
	"database/sql"
	"flag"
	"log"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-adbooking/internal/config"
	"ms-adbooking/internal/database/migrations"
)

// Schema management CLI. The booking service applies the schema migration on
// startup; this tool exists for seeding, rollbacks and pinning a version.
func main() {
	var (
		down = flag.Bool("down", false, "roll back all migrations")
		to   = flag.Uint("to", 0, "migrate to a specific version")
		seed = flag.Bool("seed", false, "apply seed migrations (catalog fixtures, default pricing rules)")
		dir  = flag.String("dir", "", "migrations directory, overrides MIGRATIONS_DIR")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using environment variables")
	}

	cfg := config.Load()
	if *dir != "" {
		cfg.Migrations.Dir = *dir
	}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("❌ Failed to open PostgreSQL: %v", err)
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatalf("❌ Failed to connect to PostgreSQL: %v", err)
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: cfg.Migrations.Dir,
		AutoMigrate:   true,
		SeedData:      *seed,
	})
	defer func() {
		if err := runner.Close(); err != nil {
			log.Printf("Failed to close migrator: %v", err)
		}
	}()

	switch {
	case *down:
		if err := runner.MigrateDown(); err != nil {
			log.Fatalf("❌ Migrate down failed: %v", err)
		}
		log.Println("✅ Rolled back all migrations")
	case *to > 0:
		if err := runner.MigrateTo(*to); err != nil {
			log.Fatalf("❌ Migrate to version %d failed: %v", *to, err)
		}
		log.Printf("✅ Migrated to version %d", *to)
	default:
		if err := runner.RunMigrations(); err != nil {
			log.Fatalf("❌ Migrations failed: %v", err)
		}
		log.Println("✅ Migrations applied")
	}
}
