package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"builder-collab/internal/client"
	"builder-collab/internal/models"

	"github.com/google/uuid"
)

/*
LEARNING: HEADLESS COLLABORATION AGENT

A builder UI is not the only thing that can sit in a page room. This
agent joins a page over the same channel the editor uses: it shows up in
the roster, heartbeats, watches lock and chat traffic, and can hold a
demo lease on one component. Useful for soaking a room with presence
during development and for verifying multi-instance fanout end to end.
*/

func main() {
	log.Println("🤖 Starting builder collaboration agent...")

	serverURL := getEnv("SERVER_URL", "ws://localhost:8080")
	pageID := getEnv("PAGE_ID", "demo-page")
	componentID := getEnv("COMPONENT_ID", "") // optional: hold a lease on this component

	lockTTL := getEnvDuration("LOCK_TTL", 30*time.Second)
	renewMargin := getEnvDuration("LOCK_RENEW_MARGIN", 5*time.Second)
	heartbeatEvery := getEnvDuration("HEARTBEAT_INTERVAL", 20*time.Second)

	user := models.CollaborationUser{
		ID:          getEnv("USER_ID", uuid.New().String()),
		Name:        getEnv("USER_NAME", "Agent"),
		Color:       getEnv("USER_COLOR", "#98c379"),
		Permissions: models.PermissionEdit,
	}

	ch := client.NewChannel(client.Options{
		ServerURL: serverURL,
		PageID:    pageID,
		User:      user,
		LockTTL:   lockTTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		log.Fatalf("❌ Failed to join page %s: %v", pageID, err)
	}
	defer ch.Close()
	log.Printf("✓ Joined page %s as %s (%s)", pageID, user.Name, user.ID)

	co := client.NewCoordinator(ch, lockTTL-renewMargin)
	defer co.Close()

	if componentID != "" {
		co.SelectComponent(componentID)
		if co.SelectedComponent() == componentID {
			log.Printf("🔒 Holding lease on component %s", componentID)
		}
	}

	ch.SendChatMessage("Agent online", componentID)

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	// Report roster and lock activity so the agent doubles as a room probe.
	report := time.NewTicker(30 * time.Second)
	defer report.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-heartbeat.C:
			ch.SendHeartbeat()

		case <-report.C:
			users := ch.ActiveUsers()
			locks := ch.ComponentLocks()
			log.Printf("📊 Page %s: %d users, %d leases (channel: %s)",
				pageID, len(users), len(locks), ch.Status())
			if err := co.Degraded(); err != nil {
				log.Printf("⚠️  Channel degraded: %v", err)
			}

		case <-quit:
			log.Println("\n🛑 Agent shutting down...")
			ch.SendChatMessage("Agent offline", componentID)
			co.Close()
			// Give the unlock and chat frames a moment to flush.
			time.Sleep(200 * time.Millisecond)
			log.Println("✓ Agent shutdown complete")
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
