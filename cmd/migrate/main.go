package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/noah-isme/trial-subjects-api/pkg/config"
	"github.com/noah-isme/trial-subjects-api/pkg/database"
	"github.com/noah-isme/trial-subjects-api/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|status]")
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	table := cfg.Database.MigrationTable
	switch command {
	case "up":
		if err := database.Migrate(ctx, db.DB, table); err != nil {
			logr.Sugar().Fatalw("migrate up failed", "error", err)
		}
		logr.Info("migrations applied")
	case "down":
		if err := database.Rollback(ctx, db.DB, table); err != nil {
			logr.Sugar().Fatalw("migrate down failed", "error", err)
		}
		logr.Info("last migration rolled back")
	case "status":
		statuses, err := database.Status(ctx, db.DB, table)
		if err != nil {
			logr.Sugar().Fatalw("migrate status failed", "error", err)
		}
		for _, st := range statuses {
			applied := "pending"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%05d  %-40s  %s\n", st.Source.Version, st.Source.Path, applied)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}
