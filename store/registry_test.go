package store_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/bomberhub/store"
)

func TestNewRegistry(t *testing.T) {
	r := store.NewRegistry()
	if r == nil {
		t.Fatal("expected non-nil Registry")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := store.NewRegistry()

	rel := store.Relationship{
		ParentCollection: store.CollectionSessions,
		ChildCollection:  store.CollectionSessionPlayers,
		ParentKeyField:   "sessionId",
	}

	r.Register(rel)

	rels := r.AllRelationships()
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	if diff := cmp.Diff(rel, rels[0]); diff != "" {
		t.Errorf("relationship mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_ChildrenOf(t *testing.T) {
	r := store.NewRegistry()

	r.Register(store.Relationship{
		ParentCollection: "sessions",
		ChildCollection:  "session-players",
		ParentKeyField:   "sessionId",
	})
	r.Register(store.Relationship{
		ParentCollection: "session-players",
		ChildCollection:  "player-items",
		ParentKeyField:   "playerId",
	})

	sessionChildren := r.ChildrenOf("sessions")
	if len(sessionChildren) != 1 {
		t.Fatalf("expected 1 child for sessions, got %d", len(sessionChildren))
	}
	if sessionChildren[0].ChildCollection != "session-players" {
		t.Errorf("expected child collection 'session-players', got %q", sessionChildren[0].ChildCollection)
	}

	playerChildren := r.ChildrenOf("session-players")
	if len(playerChildren) != 1 {
		t.Fatalf("expected 1 child for session-players, got %d", len(playerChildren))
	}
	if playerChildren[0].ParentKeyField != "playerId" {
		t.Errorf("expected parent key 'playerId', got %q", playerChildren[0].ParentKeyField)
	}

	// Leaf collection
	if n := len(r.ChildrenOf("player-items")); n != 0 {
		t.Errorf("expected 0 children for player-items, got %d", n)
	}
}

func TestRegistry_HasChildren(t *testing.T) {
	r := store.NewRegistry()

	if r.HasChildren("sessions") {
		t.Error("expected no children before register")
	}

	r.Register(store.Relationship{
		ParentCollection: "sessions",
		ChildCollection:  "session-players",
		ParentKeyField:   "sessionId",
	})

	if !r.HasChildren("sessions") {
		t.Error("expected sessions to have children")
	}
	if r.HasChildren("session-players") {
		t.Error("expected session-players to not have children")
	}
}

func TestRegistry_MultipleChildCollections(t *testing.T) {
	r := store.NewRegistry()

	r.Register(store.Relationship{ParentCollection: "sessions", ChildCollection: "session-players", ParentKeyField: "sessionId"})
	r.Register(store.Relationship{ParentCollection: "sessions", ChildCollection: "session-events", ParentKeyField: "sessionId"})

	if n := len(r.ChildrenOf("sessions")); n != 2 {
		t.Errorf("expected 2 children for sessions, got %d", n)
	}
}

// --- Registry Edge Cases ---

func TestRegistry_Empty(t *testing.T) {
	r := store.NewRegistry()

	if n := len(r.AllRelationships()); n != 0 {
		t.Errorf("expected 0 relationships, got %d", n)
	}
	if n := len(r.Parents()); n != 0 {
		t.Errorf("expected 0 parents, got %d", n)
	}
	// nil slice is acceptable
	if n := len(r.ChildrenOf("nonexistent")); n != 0 {
		t.Errorf("expected 0 children for nonexistent parent, got %d", n)
	}
	if r.HasChildren("") {
		t.Error("expected false for empty parent")
	}
}

func TestRegistry_Register_DuplicateRelationship(t *testing.T) {
	r := store.NewRegistry()

	rel := store.Relationship{ParentCollection: "sessions", ChildCollection: "session-players", ParentKeyField: "sessionId"}
	r.Register(rel)
	r.Register(rel)

	// Both are stored (no deduplication)
	if n := len(r.AllRelationships()); n != 2 {
		t.Errorf("expected 2 relationships (duplicates allowed), got %d", n)
	}
	if n := len(r.ChildrenOf("sessions")); n != 2 {
		t.Errorf("expected 2 children for sessions (duplicates), got %d", n)
	}
}

func TestRegistry_Parents(t *testing.T) {
	r := store.NewRegistry()

	r.Register(store.Relationship{ParentCollection: "c", ChildCollection: "d"})
	r.Register(store.Relationship{ParentCollection: "a", ChildCollection: "b"})
	r.Register(store.Relationship{ParentCollection: "c", ChildCollection: "e"})

	want := []store.Collection{"c", "a"}
	if diff := cmp.Diff(want, r.Parents()); diff != "" {
		t.Errorf("parents mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_AllRelationships_Order(t *testing.T) {
	r := store.NewRegistry()

	r.Register(store.Relationship{ParentCollection: "a", ChildCollection: "b"})
	r.Register(store.Relationship{ParentCollection: "c", ChildCollection: "d"})
	r.Register(store.Relationship{ParentCollection: "e", ChildCollection: "f"})

	rels := r.AllRelationships()
	if len(rels) != 3 {
		t.Fatalf("expected 3 relationships, got %d", len(rels))
	}

	// Should maintain insertion order
	for i, want := range []store.Collection{"a", "c", "e"} {
		if rels[i].ParentCollection != want {
			t.Errorf("expected relationship %d parent %q, got %q", i, want, rels[i].ParentCollection)
		}
	}
}
