package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"storefront/internal/cartstore"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	productrepo "storefront/internal/repository/product"
	productsvc "storefront/internal/service/product"
	"storefront/internal/session"
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
	log = log.Named("api")

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString, log)
	if err != nil {
		log.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	m := metrics.New()

	productRepo := productrepo.NewPostgres(dbpool, log)
	productService := productsvc.New(productRepo)

	store, err := cartstore.Open(ctx, cartstore.Options{
		Kind:       cfg.CartStore,
		Pool:       dbpool,
		RedisAddr:  cfg.RedisAddr,
		NATSURL:    cfg.NATSURL,
		NATSBucket: cfg.NATSBucket,
		SQLitePath: cfg.SQLitePath,
		TTL:        cfg.SessionTTL * 4,
	}, log)
	if err != nil {
		log.Fatal("open cart store", zap.String("kind", cfg.CartStore), zap.Error(err))
	}
	defer store.Close()

	sessions := session.New(session.Options{
		Store:          store,
		Key:            cfg.CartKey,
		TTL:            cfg.SessionTTL,
		PersistTimeout: cfg.PersistTimeout,
		Logger:         log.Named("cart"),
		OnPersistError: m.PersistFailed,
		OnCount:        m.SetSessions,
	})

	checkoutService := checkout.New(checkout.Options{
		Phone:    cfg.CheckoutPhone,
		Currency: cfg.CurrencyLabel,
		Catalog:  productService,
		Logger:   log.Named("checkout"),
	})

	srv, err := httpserver.New(cfg.HTTPAddr, log, dbpool, httpserver.Deps{
		ProductSvc:  productService,
		Sessions:    sessions,
		Checkout:    checkoutService,
		Metrics:     m,
		Admin:       httpserver.AdminAuth{User: cfg.AdminUser, PasswordHash: cfg.AdminPasswordHash},
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	// Shutdown may have used up ctx; carts get their own budget.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelFlush()
	if err := sessions.Close(flushCtx); err != nil {
		log.Warn("flushing carts failed", zap.Error(err))
	}
	log.Info("server stopped")
}
