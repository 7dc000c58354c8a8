package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/doorman/doorman/pkg/model"
)

func newTestCache(t *testing.T, opts ...ProgressCacheOption) (*ProgressCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewProgressCache(client, "test", opts...), server
}

func TestProgressCacheKeys(t *testing.T) {
	cache := NewProgressCache(nil, "")

	if got := cache.progressKey("game-1"); got != "doorman:session:game-1:progress" {
		t.Fatalf("unexpected progress key %q", got)
	}
	if got := cache.liveKey(); got != "doorman:sessions:live" {
		t.Fatalf("unexpected live key %q", got)
	}

	custom := NewProgressCache(nil, "staging")
	if got := custom.progressKey("x"); got != "staging:session:x:progress" {
		t.Fatalf("unexpected prefixed key %q", got)
	}
}

func TestWriteAndReadProgress(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()

	written := &model.LiveProgress{
		SessionID: "game-1",
		Scenario:  2,
		Status:    model.OutcomeRunning,
		Capacity:  1000,
		Admitted:  250,
		Rejected:  90,
		Counts:    map[model.Attribute]int{"techno_lover": 180, "creative": 40},
		Minimums:  map[model.Attribute]int{"techno_lover": 650, "creative": 300},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := cache.WriteProgress(ctx, written); err != nil {
		t.Fatalf("WriteProgress() error: %v", err)
	}

	got, err := cache.ReadProgress(ctx, "game-1")
	if err != nil {
		t.Fatalf("ReadProgress() error: %v", err)
	}
	if got.Admitted != 250 || got.Rejected != 90 || got.Counts["creative"] != 40 || got.Minimums["techno_lover"] != 650 {
		t.Fatalf("unexpected progress %+v", got)
	}
	if !got.UpdatedAt.Equal(written.UpdatedAt) {
		t.Fatalf("expected updated_at %v, got %v", written.UpdatedAt, got.UpdatedAt)
	}
	if ttl := server.TTL(cache.progressKey("game-1")); ttl != defaultProgressTTL {
		t.Fatalf("expected ttl %v, got %v", defaultProgressTTL, ttl)
	}
}

func TestReadProgressNotFound(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.ReadProgress(context.Background(), "missing")
	if !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("expected ErrProgressNotFound, got %v", err)
	}
}

func TestLiveSessionsFollowStatus(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"game-1", "game-2"} {
		if err := cache.WriteProgress(ctx, &model.LiveProgress{SessionID: id, Status: model.OutcomeRunning, UpdatedAt: now}); err != nil {
			t.Fatalf("WriteProgress(%s) error: %v", id, err)
		}
	}

	live, err := cache.LiveSessions(ctx)
	if err != nil {
		t.Fatalf("LiveSessions() error: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("expected two live sessions, got %v", live)
	}

	if err := cache.WriteProgress(ctx, &model.LiveProgress{SessionID: "game-1", Status: model.OutcomeCompleted, UpdatedAt: now}); err != nil {
		t.Fatalf("WriteProgress() error: %v", err)
	}
	live, err = cache.LiveSessions(ctx)
	if err != nil {
		t.Fatalf("LiveSessions() error: %v", err)
	}
	if len(live) != 1 || live[0] != "game-2" {
		t.Fatalf("expected only game-2 live, got %v", live)
	}

	// the finished session keeps its final snapshot
	got, err := cache.ReadProgress(ctx, "game-1")
	if err != nil || got.Status != model.OutcomeCompleted {
		t.Fatalf("expected completed snapshot, got %+v, err %v", got, err)
	}
}

func TestLiveSessionsDropStaleEntries(t *testing.T) {
	cache, server := newTestCache(t, WithLiveWindow(time.Minute))
	ctx := context.Background()

	stale := &model.LiveProgress{SessionID: "crashed", Status: model.OutcomeRunning, UpdatedAt: time.Now().Add(-time.Hour)}
	fresh := &model.LiveProgress{SessionID: "running", Status: model.OutcomeRunning, UpdatedAt: time.Now()}
	for _, p := range []*model.LiveProgress{stale, fresh} {
		if err := cache.WriteProgress(ctx, p); err != nil {
			t.Fatalf("WriteProgress(%s) error: %v", p.SessionID, err)
		}
	}

	live, err := cache.LiveSessions(ctx)
	if err != nil {
		t.Fatalf("LiveSessions() error: %v", err)
	}
	if len(live) != 1 || live[0] != "running" {
		t.Fatalf("expected only the fresh session, got %v", live)
	}

	members, err := server.ZMembers(cache.liveKey())
	if err != nil {
		t.Fatalf("ZMembers() error: %v", err)
	}
	if len(members) != 1 || members[0] != "running" {
		t.Fatalf("expected stale entry pruned from the index, got %v", members)
	}
}
