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

	"encoderfarm/config"
	"encoderfarm/dispatch"
	"encoderfarm/merger"
	"encoderfarm/server"
	"encoderfarm/splitter"
)

// segmentExt filters which files in the chunks directory count as segments.
const segmentExt = ".mp4"

func main() {
	cfg, err := config.LoadCoordinator(os.Args[1:])
	if err != nil {
		log.Fatalf("[coordinator] configuration error: %v", err)
	}

	for _, dir := range []string{cfg.Coordinator.ChunksDir, cfg.Coordinator.ResultsDir, cfg.Coordinator.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("[coordinator] failed to create %s: %v", dir, err)
		}
	}

	store := dispatch.NewStore(cfg.Coordinator.ChunksDir, segmentExt)
	if count, err := store.Rebuild(); err != nil {
		log.Fatalf("[coordinator] initial store build failed: %v", err)
	} else {
		log.Printf("[coordinator] store built from %s: %d segments", cfg.Coordinator.ChunksDir, count)
	}

	split := splitter.NewSplitter(store, cfg.Coordinator.ChunksDir, cfg.Coordinator.ResultsDir)
	merge := merger.NewMerger(store, cfg.Coordinator.ResultsDir, cfg.Coordinator.OutputDir)

	srv := server.NewServer(store, split, merge,
		cfg.Coordinator.ChunksDir, cfg.Coordinator.ResultsDir,
		cfg.Coordinator.MaxUploadBytes(), cfg.Coordinator.SegmentSeconds,
		cfg.Merge.OutputName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if lease := cfg.Coordinator.ClaimLease(); lease > 0 {
		go reclaimLoop(ctx, store, lease)
	}

	httpSrv := &http.Server{
		Addr:    cfg.Coordinator.ListenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("[coordinator] listening on %s", cfg.Coordinator.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[coordinator] serve error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[coordinator] shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[coordinator] shutdown error: %v", err)
	}
}

// reclaimLoop periodically returns overdue claimed segments to the queue so
// a crashed worker cannot starve its segments forever.
func reclaimLoop(ctx context.Context, store *dispatch.Store, lease time.Duration) {
	ticker := time.NewTicker(lease / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reclaimed := store.ReclaimExpired(lease); len(reclaimed) > 0 {
				log.Printf("[coordinator] reclaimed expired claims: %v", reclaimed)
			}
		}
	}
}
