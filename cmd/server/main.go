package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geoduel/geoduel/internal/config"
	"github.com/geoduel/geoduel/internal/directory"
	"github.com/geoduel/geoduel/internal/feed"
	"github.com/geoduel/geoduel/internal/httpapi"
	"github.com/geoduel/geoduel/internal/identity"
	"github.com/geoduel/geoduel/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := buildLogger(cfg.DevMode)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	broker := feed.NewBroker(logger)

	var st store.Store
	if cfg.DatabaseURL == "" {
		if !cfg.DevMode {
			logger.Fatal("DATABASE_URL is required outside dev mode")
		}
		logger.Info("no DATABASE_URL, using in-memory store")
		st = store.NewMemory(broker)
	} else {
		pg, err := store.Open(cfg.DatabaseURL, broker)
		if err != nil {
			logger.Fatal("failed to open store", zap.Error(err))
		}
		if err := pg.AutoMigrate(); err != nil {
			logger.Fatal("failed to migrate", zap.Error(err))
		}
		st = pg
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir := directory.New(ctx, st, broker, logger)
	tokens := identity.NewTokenSource(cfg.JWTSecret)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(dir, tokens, cfg.DevMode),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		dir.Inbox() <- directory.ShutdownAll{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
