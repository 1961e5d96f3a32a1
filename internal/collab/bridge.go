package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

/*
LEARNING: CROSS-INSTANCE FANOUT

A single hub only sees the sessions connected to its own process. When the
builder runs more than one collaboration server, rooms for the same page
exist on several instances at once. The bridge publishes every local
broadcast to a Redis channel per page and relays frames published by
sibling instances back into the local room.

Each frame carries the publishing node's id so an instance never replays
its own messages.
*/

const bridgeChannelPrefix = "collab.page."

// bridgeFrame is the envelope on the Redis channel.
type bridgeFrame struct {
	Node   string          `json:"node"`
	PageID string          `json:"page_id"`
	Data   json.RawMessage `json:"data"`
}

// RedisBridge fans room broadcasts out across server instances.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	nodeID string

	cancel context.CancelFunc
}

// NewRedisBridge connects to Redis and verifies the connection.
func NewRedisBridge(ctx context.Context, addr string, hub *Hub) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBridge{
		client: client,
		hub:    hub,
		nodeID: ksuid.New().String(),
	}, nil
}

// Start subscribes to all page channels and relays sibling frames into the
// local hub.
func (b *RedisBridge) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	pubsub := b.client.PSubscribe(ctx, bridgeChannelPrefix+"*")

	go func() {
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			var frame bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				log.Printf("⚠️  Dropping undecodable bridge frame: %v", err)
				continue
			}
			if frame.Node == b.nodeID {
				continue // our own publish echoed back
			}
			b.hub.InjectRemote(frame.PageID, frame.Data)
		}
	}()

	log.Printf("✓ Redis bridge started (node: %s)", b.nodeID)
}

// Publish sends one broadcast frame to sibling instances.
func (b *RedisBridge) Publish(pageID string, data []byte) error {
	frame, err := json.Marshal(bridgeFrame{
		Node:   b.nodeID,
		PageID: pageID,
		Data:   data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode bridge frame: %w", err)
	}
	return b.client.Publish(context.Background(), bridgeChannelPrefix+pageID, frame).Err()
}

// Shutdown stops the relay and closes the Redis connection.
func (b *RedisBridge) Shutdown() {
	if b.cancel != nil {
		b.cancel()
	}
	if err := b.client.Close(); err != nil {
		log.Printf("⚠️  Failed to close redis client: %v", err)
	}
}
