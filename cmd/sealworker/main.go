package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seald/internal/config"
	"seald/internal/infra/auditpg"
	"seald/internal/infra/db"
	"seald/internal/sweep"
	"seald/internal/usecase"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

const cronWorkflowID = "seald-draft-sweep"

func main() {
	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthSrv := startHealthServer(cfg.WorkerHealthAddr)
	defer func() {
		_ = healthSrv.Shutdown(context.Background())
	}()

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	if !store.Enabled() {
		log.Fatalf("POSTGRES_DSN is required for the draft sweep")
	}
	defer func() {
		_ = store.Close()
	}()
	auditStore, err := auditpg.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init audit store: %v", err)
	}
	defer auditStore.Close()

	audit := usecase.NewAuditEmitter(auditStore.AuditLog(), nil, cfg.AuditQueueSize)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = audit.Close(closeCtx)
	}()
	drafts := usecase.NewDraftService(store.Drafts(), audit)

	temporalClient, err := client.NewClient(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("failed to create temporal client: %v", err)
	}
	defer temporalClient.Close()

	acts := sweep.New(drafts)
	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(sweep.AbandonStaleDraftsWorkflow)
	w.RegisterActivityWithOptions(acts.AbandonStaleDrafts, activity.RegisterOptions{Name: sweep.AbandonStaleDraftsActivityName})

	if cfg.SweepCron != "" {
		if err := scheduleSweep(ctx, temporalClient, cfg); err != nil {
			log.Fatalf("failed to schedule draft sweep: %v", err)
		}
	}

	interrupt := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(interrupt)
	}()

	log.Printf("sealworker listening on task queue %s", cfg.TemporalTaskQueue)
	if err := w.Run(interrupt); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}

// scheduleSweep starts the cron workflow once; an already running
// schedule is left alone.
func scheduleSweep(ctx context.Context, c client.Client, cfg config.Config) error {
	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           cronWorkflowID,
		TaskQueue:    cfg.TemporalTaskQueue,
		CronSchedule: cfg.SweepCron,
	}, sweep.AbandonStaleDraftsWorkflow, sweep.WorkflowInput{Retention: cfg.DraftRetention()})
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		log.Printf("draft sweep already scheduled as %s", cronWorkflowID)
		return nil
	}
	if err == nil {
		log.Printf("draft sweep scheduled with cron %q", cfg.SweepCron)
	}
	return err
}

func startHealthServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health server error: %v", err)
		}
	}()
	return srv
}
