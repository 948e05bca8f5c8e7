package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"zhardem.org/internal/config"
	"zhardem.org/internal/migrate"
	"zhardem.org/internal/obs"
)

func main() {
	var (
		migrationsDir = flag.String("migrations", "migrations/sql", "directory with *.up.sql / *.down.sql files")
		seedsDir      = flag.String("seeds", "migrations/seeds", "directory with seed *.sql files")
	)
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	obs.InitLogger(cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DBDSN)
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runner := migrate.NewRunner(db, *migrationsDir, *seedsDir)

	switch cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "seed":
		err = runner.Seed(ctx)
	case "status":
		var applied []string
		applied, err = runner.Status(ctx)
		if err == nil {
			if len(applied) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "usage: migrate [flags] up|down|seed|status\n")
		os.Exit(2)
	}
	if err != nil {
		obs.Logger().Fatal().Err(err).Str("command", cmd).Msg("migrate failed")
	}
}
