package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seald/internal/config"
	"seald/internal/infra/db"
	httpinfra "seald/internal/infra/http"
)

func main() {
	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	srv := httpinfra.NewServer(cfg, store)
	log.Printf("seald listening on %s (env=%s build=%s)", cfg.HTTPAddr, cfg.SealEnv, cfg.BuildID)
	runErr := srv.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Close(closeCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("server exited: %v", runErr)
	}
}
