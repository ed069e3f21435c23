// Command migrate applies the embedded schema to a Postgres database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/waypoint-tourism/directory/internal/migrations"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "Path to .env with DATABASE_URL")
		dsn     = flag.String("dsn", "", "Postgres connection string (overrides DATABASE_URL)")
		list    = flag.Bool("list", false, "Print migration names and exit")
		timeout = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	)
	flag.Parse()

	if *list {
		names, err := migrations.Names()
		if err != nil {
			log.Fatalf("list migrations: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("load env (%s): %v", *envFile, err)
	}
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *dsn == "" {
		log.Fatal("DATABASE_URL missing; pass -dsn or set it in the environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", *dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	log.Println("migrations applied")
}
