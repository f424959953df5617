package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/bomberhub/store"
)

// --- Batch Tests ---

func TestBatch_CommitCountsAtLimitBoundary(t *testing.T) {
	tests := []struct {
		name        string
		mutations   int
		wantCommits int
	}{
		{name: "empty", mutations: 0, wantCommits: 0},
		{name: "one", mutations: 1, wantCommits: 1},
		{name: "exactly the limit", mutations: 500, wantCommits: 1},
		{name: "one past the limit", mutations: 501, wantCommits: 2},
		{name: "two full groups", mutations: 1000, wantCommits: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mem := newTestClient(t)
			ctx := context.Background()

			b := c.Batch()
			for i := 0; i < tt.mutations; i++ {
				addr := store.Doc(store.CollectionSessionPlayers, fmt.Sprintf("p%04d", i))
				if err := b.Create(ctx, map[string]any{"n": i}, addr); err != nil {
					t.Fatalf("Create %d failed: %v", i, err)
				}
			}
			if err := b.Commit(ctx); err != nil {
				t.Fatalf("Commit failed: %v", err)
			}

			if got := mem.Calls("commit"); got != tt.wantCommits {
				t.Errorf("expected %d backend commits, got %d", tt.wantCommits, got)
			}
			if b.Commits() != tt.wantCommits {
				t.Errorf("expected Commits() %d, got %d", tt.wantCommits, b.Commits())
			}
			if mem.Len() != tt.mutations {
				t.Errorf("expected %d documents, got %d", tt.mutations, mem.Len())
			}
			if b.State() != store.BatchClosed {
				t.Errorf("expected state closed, got %s", b.State())
			}
		})
	}
}

func TestBatch_ConfiguredLimit(t *testing.T) {
	c, mem := newTestClient(t)
	cfg := c.Config()
	cfg.BatchLimit = 2
	c = store.New(mem, cfg)
	ctx := context.Background()

	b := c.Batch()
	for i := 0; i < 5; i++ {
		if err := b.Set(ctx, map[string]any{"n": i}, store.Doc(store.CollectionSessions, fmt.Sprintf("s%d", i))); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if got := mem.Calls("commit"); got != 2 {
		t.Errorf("expected 2 automatic flushes, got %d", got)
	}
	if b.Count() != 5 {
		t.Errorf("expected count 5, got %d", b.Count())
	}
	if b.State() != store.BatchOpen {
		t.Errorf("expected state open between flushes, got %s", b.State())
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if got := mem.Calls("commit"); got != 3 {
		t.Errorf("expected 3 commits, got %d", got)
	}
}

func TestBatch_MixedMutations(t *testing.T) {
	c, mem := newTestClient(t)
	ctx := context.Background()
	c.Create(ctx, map[string]any{"positionX": 1}, store.Doc(store.CollectionSessionPlayers, "keep"))
	c.Create(ctx, map[string]any{}, store.Doc(store.CollectionSessionPlayers, "drop"))

	b := c.Batch()
	if err := b.Update(ctx, map[string]any{"positionX": 2}, store.Doc(store.CollectionSessionPlayers, "keep")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := b.Delete(ctx, store.Doc(store.CollectionSessionPlayers, "drop")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := b.Create(ctx, map[string]any{"gameState": "waitingForPlayers"}, store.Scope(store.CollectionSessions)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	raw, _ := c.GetRaw(ctx, store.Doc(store.CollectionSessionPlayers, "keep"))
	if raw["positionX"] != int64(2) {
		t.Errorf("expected positionX 2, got %v", raw["positionX"])
	}
	if _, ok := c.GetRaw(ctx, store.Doc(store.CollectionSessionPlayers, "drop")); ok {
		t.Error("expected deleted document to be gone")
	}
	if mem.Len() != 2 {
		t.Errorf("expected 2 documents, got %d", mem.Len())
	}
}

func TestBatch_WritesDataAsGiven(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	replaced := store.Doc(store.CollectionSessions, "s1")
	updated := store.Doc(store.CollectionSessions, "s2")
	created := store.Doc(store.CollectionSessions, "s3")
	c.Create(ctx, map[string]any{"a": 1, "b": 2}, replaced)
	c.Create(ctx, map[string]any{"a": 1}, updated)

	b := c.Batch()
	if err := b.Set(ctx, map[string]any{"a": 9}, replaced); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b.Update(ctx, map[string]any{"b": 3}, updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := b.Create(ctx, map[string]any{"c": 4}, created); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tests := []struct {
		name string
		addr store.Address
		want map[string]any
	}{
		{name: "set replaces", addr: replaced, want: map[string]any{"id": "s1", "a": int64(9)}},
		{name: "update merges without stamp", addr: updated, want: map[string]any{"id": "s2", "a": int64(1), "b": int64(3), "dateCreated": testTime}},
		{name: "create without stamp", addr: created, want: map[string]any{"id": "s3", "c": int64(4)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := c.GetRaw(ctx, tt.addr)
			if !ok {
				t.Fatalf("expected %s to exist", tt.addr)
			}
			if diff := cmp.Diff(tt.want, raw); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBatch_ClosedAfterCommit(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	b := c.Batch()
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	addr := store.Doc(store.CollectionSessions, "s1")
	ops := map[string]func() error{
		"create": func() error { return b.Create(ctx, map[string]any{}, addr) },
		"set":    func() error { return b.Set(ctx, map[string]any{}, addr) },
		"update": func() error { return b.Update(ctx, map[string]any{}, addr) },
		"delete": func() error { return b.Delete(ctx, addr) },
		"commit": func() error { return b.Commit(ctx) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, store.ErrBatchClosed) {
				t.Errorf("expected ErrBatchClosed, got %v", err)
			}
		})
	}
}

func TestBatch_InvalidAddress(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	b := c.Batch()
	if err := b.Delete(ctx, store.Scope(store.CollectionSessions)); !errors.Is(err, store.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
	if b.Count() != 0 {
		t.Errorf("expected rejected mutation not to count, got %d", b.Count())
	}
}

func TestBatch_CommitFailure(t *testing.T) {
	c, mem := newTestClient(t)
	ctx := context.Background()
	mem.FailNext("commit", errors.New("unavailable"))

	b := c.Batch()
	_ = b.Set(ctx, map[string]any{"a": 1}, store.Doc(store.CollectionSessions, "s1"))
	if err := b.Commit(ctx); err == nil {
		t.Fatal("expected commit error")
	}
	if b.State() != store.BatchClosed {
		t.Errorf("expected batch to close after a failed commit, got %s", b.State())
	}
	if mem.Len() != 0 {
		t.Errorf("expected nothing written, got %d documents", mem.Len())
	}
}
