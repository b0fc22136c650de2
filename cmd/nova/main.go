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

	"github.com/joho/godotenv"

	"github.com/novahq/nova/internal/chat"
	"github.com/novahq/nova/internal/config"
	"github.com/novahq/nova/internal/groq"
	"github.com/novahq/nova/internal/httpapi"
	"github.com/novahq/nova/internal/memory"
	"github.com/novahq/nova/internal/observability"
	"github.com/novahq/nova/internal/ratelimit"
)

func main() {
	// A missing .env is fine; the environment may already carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	stats := observability.NewStats()
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store := memory.NewInMemoryStore(cfg.IdentityIdleTimeout)
	defer store.Close()
	store.SetEvictHook(func(string) {
		metrics.ActiveIdentities.Set(float64(store.ActiveIdentities()))
	})

	limiter, err := ratelimit.NewLimiter(ratelimit.DefaultMaxRequests, ratelimit.DefaultWindow, cfg.RateLimitIdentityCap)
	if err != nil {
		log.Fatalf("rate limiter init failed: %v", err)
	}

	streamer := groq.NewClient(cfg.GroqURL, cfg.GroqAPIKey, cfg.UpstreamIdleTimeout)
	orchestrator := chat.NewOrchestrator(limiter, store, streamer, stats, metrics)

	api := httpapi.New(orchestrator, stats)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	store.StartJanitor(runCtx, time.Minute)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
