package chatws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	bridgeChannel        = "realtime:events"
	bridgeMaxReconnects  = 5
	bridgeInitialBackoff = time.Second
)

// RedisBridge relays durable events between gateway processes over redis
// pub/sub. Each process tags published envelopes with its origin id and skips
// its own on receipt, since the local hub already delivered them.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	origin string
}

type bridgeEnvelope struct {
	Origin  string          `json:"origin"`
	UserID  int64           `json:"user_id,omitempty"`
	RoomID  int64           `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func NewRedisBridge(client *redis.Client, hub *Hub) *RedisBridge {
	return &RedisBridge{
		client: client,
		hub:    hub,
		origin: uuid.NewString(),
	}
}

func (b *RedisBridge) PublishToUser(userID int64, payload []byte) {
	b.publish(bridgeEnvelope{Origin: b.origin, UserID: userID, Payload: payload})
}

func (b *RedisBridge) PublishToRoom(roomID int64, payload []byte) {
	b.publish(bridgeEnvelope{Origin: b.origin, RoomID: roomID, Payload: payload})
}

func (b *RedisBridge) publish(envelope bridgeEnvelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("bridge encode envelope: %v", err)
		return
	}
	if err := b.client.Publish(context.Background(), bridgeChannel, data).Err(); err != nil {
		// Local sessions already got the event; only cross-process delivery
		// is lost, and clients resynchronize over HTTP anyway.
		log.Printf("bridge publish: %v", err)
	}
}

// Run consumes the shared channel until ctx is cancelled. A broken
// subscription is retried with growing backoff; after the cap the error is
// returned to the caller instead of retrying silently.
func (b *RedisBridge) Run(ctx context.Context) error {
	attempts := 0
	backoff := bridgeInitialBackoff

	for {
		started := time.Now()
		err := b.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A subscription that held for a while counts as recovered.
		if time.Since(started) > time.Minute {
			attempts = 0
			backoff = bridgeInitialBackoff
		}

		attempts++
		if attempts >= bridgeMaxReconnects {
			return fmt.Errorf("bridge subscription failed after %d attempts: %w", attempts, err)
		}
		log.Printf("bridge subscription lost (attempt %d): %v", attempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (b *RedisBridge) consume(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, bridgeChannel)
	defer func() {
		_ = sub.Close()
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	for {
		message, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}

		var envelope bridgeEnvelope
		if err := json.Unmarshal([]byte(message.Payload), &envelope); err != nil {
			log.Printf("bridge decode envelope: %v", err)
			continue
		}
		if envelope.Origin == b.origin {
			continue
		}

		b.hub.DeliverLocal(envelope.UserID, envelope.RoomID, envelope.Payload)
	}
}
