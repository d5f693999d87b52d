package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logger"
	"storefront/internal/migrate"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	version := flag.Bool("version", false, "print the current schema version and exit")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("migrate")

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, log)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	switch {
	case *version:
		v, dirty, err := migrate.Version(ctx, pool)
		if err != nil {
			log.Fatal("read version", zap.Error(err))
		}
		log.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
	case *down > 0:
		if err := migrate.Rollback(ctx, pool, *down); err != nil {
			log.Fatal("roll back migrations", zap.Int("steps", *down), zap.Error(err))
		}
		log.Info("migrations rolled back", zap.Int("steps", *down))
	default:
		if err := migrate.Apply(ctx, pool); err != nil {
			log.Fatal("apply migrations", zap.Error(err))
		}
		log.Info("migrations applied")
	}
}
