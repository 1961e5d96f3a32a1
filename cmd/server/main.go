package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"builder-collab/internal/api"
	"builder-collab/internal/collab"
	"builder-collab/internal/config"
	"builder-collab/internal/db"
	"builder-collab/internal/repository"
	"builder-collab/internal/telemetry"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

This main function demonstrates:
1. Service initialization and dependency injection
2. Degraded-mode startup: the live collaboration hub runs even when
   postgres or redis are unreachable, only persistence and cross-instance
   fanout are lost
3. Distributed tracing with Jaeger
4. Graceful shutdown handling (listening for SIGINT/SIGTERM)
5. Proper resource cleanup order
*/

func main() {
	log.Println("🚀 Starting builder collaboration server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing
	// Learning: Do this FIRST so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("builder-collab", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Initialize GORM database. Persistence is ancillary: without it the
	// hub still serves live presence, locks and chat, so a DB outage
	// degrades the server instead of killing it.
	var chatRepo *repository.ChatRepositoryImpl
	var sessionRepo *repository.SessionRepositoryImpl

	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Printf("⚠️  Database unavailable: %v (continuing without chat history / session audit)", err)
	} else {
		defer database.Close()
		chatRepo = repository.NewChatRepository(database.DB)
		sessionRepo = repository.NewSessionRepository(database.DB)
	}

	// Initialize the collaboration hub
	hubOpts := collab.Options{
		LockTTL:       cfg.LockTTL,
		IdleAfter:     cfg.IdleAfter,
		OfflineAfter:  cfg.OfflineAfter,
		SweepInterval: cfg.SweepInterval,
		ChatHistory:   cfg.ChatHistoryLimit,
	}
	if chatRepo != nil {
		hubOpts.ChatRepo = chatRepo
		hubOpts.SessionRepo = sessionRepo
	}
	hub := collab.NewHub(hubOpts)

	// Optional Redis bridge for multi-instance fanout
	// Learning: wire the bridge BEFORE Start so no broadcast slips past it
	var bridge *collab.RedisBridge
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		bridge, err = collab.NewRedisBridge(ctx, cfg.RedisAddr, hub)
		cancel()
		if err != nil {
			log.Printf("⚠️  Redis unavailable: %v (continuing single-instance)", err)
			bridge = nil
		} else {
			hub.SetBridge(bridge)
		}
	}

	hub.Start()
	if bridge != nil {
		bridge.Start()
	}

	// Initialize WebSocket handler
	wsHandler := collab.NewWebSocketHandler(hub)

	// Initialize REST handlers with dependency injection
	var chatHistory api.ChatHistory
	var sessionHistory api.SessionHistory
	if chatRepo != nil {
		chatHistory = chatRepo
		sessionHistory = sessionRepo
	}
	handler := api.NewHandler(hub, chatHistory, sessionHistory)

	// Setup routes
	router := api.SetupRoutes(handler, wsHandler)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 Endpoints:")
		log.Printf("   GET /api/pages/:id/presence - Live roster")
		log.Printf("   GET /api/pages/:id/locks    - Live component leases")
		log.Printf("   GET /api/pages/:id/chat     - Chat history")
		log.Printf("   GET /api/pages/:id/sessions - Session audit")
		log.Printf("   WS  /ws/page/:id            - Collaboration channel")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	// Shutdown HTTP server with timeout
	// Learning: Give the server 30 seconds to finish existing requests
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Shutdown the hub first so sessions stop before the bridge closes
	hub.Shutdown()

	if bridge != nil {
		bridge.Shutdown()
	}

	log.Println("✓ Server shutdown complete")
}
