package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirsync/server/internal/config"
	"github.com/dirsync/server/internal/snapshot"
	"github.com/dirsync/server/internal/state"
	"github.com/dirsync/server/internal/walk"
	"github.com/dirsync/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	root := flag.String("root", "", "Override watched directory root")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Printf("No config file at %s, using defaults", *configPath)
		cfg = config.Default()
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *root != "" {
		cfg.Watch.Root = *root
	}

	matcher, err := walk.NewMatcher(cfg.Watch.IgnorePatterns)
	if err != nil {
		log.Fatalf("Bad ignore patterns: %v", err)
	}

	initial, err := walk.Walk(cfg.Watch.Root, matcher)
	if err != nil {
		log.Printf("Initial walk of %s failed (%v), starting empty", cfg.Watch.Root, err)
		initial = snapshot.New(nil)
	}
	log.Printf("Tracking %s (%d files)", cfg.Watch.Root, initial.Len())

	registry := ws.NewRegistry()
	broadcaster := ws.NewBroadcaster(registry)
	store := state.NewStore(initial)
	server := ws.NewServer(cfg, store, broadcaster, registry)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	if err := server.ListenAndServe(mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
