package realtime

import (
	"context"
	"testing"
	"time"

	"revyze/engine/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestFeed(t *testing.T) *Feed {
	s := miniredis.RunT(t)
	opts, err := redis.ParseURL("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return NewFeedWithClient(redis.NewClient(opts))
}

func waitFor(t *testing.T, ch <-chan *model.Project) *model.Project {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	feed := setupTestFeed(t)
	defer feed.Close()
	ctx := context.Background()

	got := make(chan *model.Project, 1)
	unsubscribe, err := feed.Subscribe(ctx, "proj-1", func(p *model.Project) { got <- p })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	want := &model.Project{ID: "proj-1", OwnerID: "user-1", Name: "Loft render"}
	if err := feed.Publish(ctx, want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	p := waitFor(t, got)
	if p.ID != want.ID || p.Name != want.Name {
		t.Fatalf("received %+v, want %+v", p, want)
	}
}

func TestChannelIsolationPerProject(t *testing.T) {
	feed := setupTestFeed(t)
	defer feed.Close()
	ctx := context.Background()

	got := make(chan *model.Project, 1)
	unsubscribe, err := feed.Subscribe(ctx, "proj-a", func(p *model.Project) { got <- p })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	if err := feed.Publish(ctx, &model.Project{ID: "proj-b"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := feed.Publish(ctx, &model.Project{ID: "proj-a"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	p := waitFor(t, got)
	if p.ID != "proj-a" {
		t.Fatalf("crossed channels: received %s", p.ID)
	}
	select {
	case extra := <-got:
		t.Fatalf("unexpected extra snapshot %s", extra.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	feed := setupTestFeed(t)
	defer feed.Close()
	ctx := context.Background()

	got := make(chan *model.Project, 4)
	unsubscribe, err := feed.Subscribe(ctx, "proj-1", func(p *model.Project) { got <- p })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	unsubscribe()
	// Idempotent.
	unsubscribe()

	if err := feed.Publish(ctx, &model.Project{ID: "proj-1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	select {
	case p := <-got:
		t.Fatalf("received snapshot %s after unsubscribe", p.ID)
	case <-time.After(200 * time.Millisecond):
	}
}
