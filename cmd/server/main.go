package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/velabrowser/vela/backend/internal/infrastructure/config"
	"github.com/velabrowser/vela/backend/internal/infrastructure/monitoring"
	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/server"
)

func main() {
	port := flag.String("port", "", "Override listen port")
	profileDir := flag.String("profile", "", "Override profile directory")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *profileDir != "" {
		cfg.Profile.Dir = *profileDir
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	srv, err := server.NewServer(cfg, monitoring.NewMetrics(), logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("shutdown did not complete cleanly")
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
