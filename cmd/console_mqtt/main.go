package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/vio_frontend/internal/app"
	"github.com/relabs-tech/vio_frontend/internal/config"
)

func main() {
	log.Println("starting vio-frontend console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("vio_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunConsoleMQTT(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
