package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"encoderfarm/config"
	"encoderfarm/worker"
)

func main() {
	cfg, err := config.LoadWorker(os.Args[1:])
	if err != nil {
		log.Fatalf("[worker] configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := worker.NewClient(cfg.Worker.CoordinatorURL)
	agent := worker.NewAgent(cfg, client)

	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[worker] fatal: %v", err)
	}

	log.Printf("[worker] %s stopped", agent.ID())
}
