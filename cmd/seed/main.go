package main

import (
	"context"

	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logger"
	productrepo "storefront/internal/repository/product"
	productsvc "storefront/internal/service/product"
	"storefront/internal/seed"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("seed")

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, log)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	svc := productsvc.New(productrepo.NewPostgres(pool, log))
	if err := seed.Apply(ctx, svc); err != nil {
		log.Fatal("seed apply", zap.Error(err))
	}

	log.Info("seed applied", zap.Int("products", len(seed.Products)))
}
