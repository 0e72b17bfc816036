package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/plantops/mv-backend/internal/config"
	"github.com/plantops/mv-backend/internal/container"
	"github.com/plantops/mv-backend/internal/logging"
)

func main() {
	cfg := config.Load()

	if err := logging.Init(&cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	c, err := container.New(*cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer c.Cleanup()

	if err := c.Database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	addr := fmt.Sprintf("0.0.0.0:%s", c.Config.Server.Port)
	s := &http.Server{
		Handler: c.Server.Routes(),
		Addr:    addr,
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server...")
		c.Cleanup()
		os.Exit(0)
	}()

	log.Printf("Server starting on %s", addr)
	log.Fatal(s.ListenAndServe())
}
