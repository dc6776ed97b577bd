package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

func snapshotChannel(sessionID uuid.UUID) string {
	return "session-updates:" + sessionID.String()
}

// PubSub provides cross-instance snapshot broadcast via Redis Pub/Sub.
// Every session mutation publishes a full snapshot; each instance fans the
// snapshot out to its own WebSocket clients.
type PubSub struct {
	rdb *goredis.Client
}

// NewPubSub creates a new PubSub instance.
func NewPubSub(client *Client) *PubSub {
	return &PubSub{rdb: client.rdb}
}

var _ domain.SessionPublisher = (*PubSub)(nil)

// PublishSnapshot publishes a session snapshot to the channel for a session.
func (ps *PubSub) PublishSnapshot(ctx context.Context, sessionID uuid.UUID, snapshot domain.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return ps.rdb.Publish(ctx, snapshotChannel(sessionID), data).Err()
}

// Subscription represents an active Pub/Sub subscription for a session.
type Subscription struct {
	sub    *goredis.PubSub
	Ch     <-chan domain.SessionSnapshot
	cancel context.CancelFunc
}

// Close unsubscribes and closes the subscription.
func (s *Subscription) Close() {
	s.cancel()
	_ = s.sub.Close()
}

// SubscribeSession subscribes to snapshot updates for a session.
// Returns a Subscription with a channel that receives snapshots.
// Call subscription.Close() when done.
func (ps *PubSub) SubscribeSession(ctx context.Context, sessionID uuid.UUID) *Subscription {
	channel := snapshotChannel(sessionID)
	sub := ps.rdb.Subscribe(ctx, channel)

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan domain.SessionSnapshot, 16)

	go func() {
		defer close(ch)
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				metrics.PubSubMessagesReceived.WithLabelValues("session-updates").Inc()

				var snapshot domain.SessionSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
					slog.Error("Failed to unmarshal pubsub message", "channel", channel, "error", err)
					continue
				}
				select {
				case ch <- snapshot:
				default:
					// Drop if receiver is slow; the next snapshot supersedes it
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &Subscription{
		sub:    sub,
		Ch:     ch,
		cancel: cancel,
	}
}
