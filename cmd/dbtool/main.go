package main

import (
	"context"
	"database/sql"
	"field-service-router/internal/adapters/repositories"
	"field-service-router/internal/config"
	"field-service-router/internal/platform/db"
	"flag"
	"log"
	"strings"

	"github.com/joho/godotenv"
)

// dbtool initializes the schema and seeds appointments into the configured database.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	driver := flag.String("driver", config.Get("DB_DRIVER", db.DriverPostgres), "database driver: pgx or sqlite")
	seedPath := flag.String("seed", config.Get("SEED_PATH", "data/seeds/appointments.json"), "JSON seed file; empty skips seeding")
	flag.Parse()

	databaseURL := config.Get("DATABASE_URL", "")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, *driver, databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := initAndSeed(ctx, conn, *driver, *seedPath); err != nil {
		log.Fatal(err)
	}
}

func initAndSeed(ctx context.Context, conn *sql.DB, driver, seedPath string) error {
	log.Println("Initializing database schema...")
	if err := repositories.InitSchema(ctx, conn); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	log.Println("Schema ready.")

	if seedPath == "" {
		return nil
	}

	log.Println("Seeding database...")
	repo := repositories.NewSQLAppointmentRepository(conn, driver)
	if err := repositories.SeedFromJSON(ctx, repo, seedPath); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	log.Println("Seeding complete.")

	return nil
}
