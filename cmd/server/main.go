package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/simp-lee/advocatedir/internal/app"
	"github.com/simp-lee/advocatedir/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	migrateOnly := flag.Bool("migrate", false, "create or update the schema, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	if *migrateOnly {
		if err := migrate(cfg); err != nil {
			log.Fatal("migration failed: ", err)
		}
		return
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("failed to create app: ", err)
	}

	if err := a.Run(); err != nil {
		log.Fatal("server error: ", err)
	}
}

func migrate(cfg *config.Config) error {
	l, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer l.Close()

	db, err := config.SetupDatabase(&cfg.Database, l.Logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := config.AutoMigrate(context.Background(), db); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "schema is up to date")
	return nil
}
