package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mavgcs/gcs-core/internal/config"
	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/server"
)

func main() {
	cfg := config.Load()

	srv := server.New(cfg)

	go handleShutdown(srv)

	if err := srv.Start(); err != nil {
		logging.Default().Fatalf("server error: %v", err)
	}
}

// handleShutdown stops every open link and background worker on
// SIGINT/SIGTERM before the process exits.
func handleShutdown(srv *server.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	srv.Dependencies().Logger.Infof("shutting down")
	srv.Shutdown()
	os.Exit(0)
}
