package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	migrations "itam-api/db/migrations"
)

const usage = `Usage: migrate <command> [version]

Commands:
  up            apply all pending migrations
  up-to N       apply migrations up to version N
  down          roll back the latest migration
  down-to N     roll back to version N
  status        print applied and pending migrations
  version       print the current schema version

DB_DSN selects the database.`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN environment variable is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("Failed to set dialect: %v", err)
	}

	command, args := os.Args[1], os.Args[2:]
	if err := goose.Run(command, db, ".", args...); err != nil {
		log.Fatalf("migrate %s: %v", command, err)
	}
}
