// Package realtime delivers authoritative project snapshots to every
// connected client over Redis pub/sub. Each project has its own channel;
// every successful persist publishes the full aggregate, and every open
// workspace subscribes to the project it has active.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"revyze/engine/internal/model"

	"github.com/redis/go-redis/v9"
)

// Feed is the snapshot bus backed by Redis pub/sub.
type Feed struct {
	client *redis.Client
	prefix string
}

// NewFeed connects to Redis and verifies the connection.
func NewFeed(redisURL string) (*Feed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Feed{client: client, prefix: "project:"}, nil
}

// NewFeedWithClient creates a feed from an existing Redis client.
func NewFeedWithClient(client *redis.Client) *Feed {
	return &Feed{client: client, prefix: "project:"}
}

func (f *Feed) channel(projectID string) string {
	return f.prefix + projectID
}

// Publish broadcasts the full project snapshot to every subscriber of its
// channel, including the publishing client itself.
func (f *Feed) Publish(ctx context.Context, p *model.Project) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(p.ID), payload).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Subscribe starts delivering snapshots for one project to onUpdate and
// returns an unsubscribe function. The callback runs on a dedicated
// goroutine; delivery stops once unsubscribe is called, so a client that
// navigates away cannot receive stale snapshots for a project it no longer
// has open.
func (f *Feed) Subscribe(ctx context.Context, projectID string, onUpdate func(*model.Project)) (unsubscribe func(), err error) {
	sub := f.client.Subscribe(ctx, f.channel(projectID))
	// Force the subscription to be established before returning so a
	// snapshot published right after Subscribe cannot be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", projectID, err)
	}

	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p model.Project
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					log.Printf("realtime: drop malformed snapshot on %s: %v", msg.Channel, err)
					continue
				}
				onUpdate(&p)
			}
		}
	}()

	var closed bool
	return func() {
		if closed {
			return
		}
		closed = true
		close(done)
		_ = sub.Close()
	}, nil
}

// Close releases the Redis connection.
func (f *Feed) Close() error {
	return f.client.Close()
}

// Ping checks if Redis is reachable.
func (f *Feed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}
