package game_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/bomberhub/internal/game"
	"github.com/jacentio/bomberhub/store"
	"github.com/jacentio/bomberhub/store/memstore"
)

type event struct {
	Name    string
	Payload any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Broadcast(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{Name: name, Payload: payload})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

func (r *recorder) last() event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	mem     *memstore.Store
	client  *store.Client
	events  *recorder
	service *game.Service
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		mem:    memstore.New(),
		events: &recorder{},
		now:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := store.DefaultConfig()
	cfg.Logger = logger
	cfg.UpdateWait = 0
	cfg.Now = func() time.Time { return f.now }
	f.client = store.New(f.mem, cfg)

	seq := 0
	f.service = game.NewService(f.client, f.events, game.Config{
		Logger: logger,
		Now:    func() time.Time { return f.now },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	})
	return f
}

func (f *fixture) sessionCount(t *testing.T) int {
	t.Helper()
	return len(f.client.QueryRaw(context.Background(), store.Scope(store.CollectionSessions)))
}

// --- Join Tests ---

func TestJoin_CreatesSessionAndPlayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Join(ctx)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if res.SessionID == "" || res.PlayerID == "" {
		t.Fatalf("expected ids, got %+v", res)
	}

	session, ok := store.Get(ctx, f.client, game.SessionSchema, store.Doc(store.CollectionSessions, res.SessionID))
	if !ok {
		t.Fatal("expected session to exist")
	}
	if session.GameState != game.WaitingForPlayers {
		t.Errorf("expected gameState %q, got %q", game.WaitingForPlayers, session.GameState)
	}
	if !session.DateCreated.Equal(f.now) {
		t.Errorf("expected dateCreated %v, got %v", f.now, session.DateCreated)
	}

	player, ok := store.Get(ctx, f.client, game.PlayerSchema, store.Doc(store.CollectionSessionPlayers, res.PlayerID))
	if !ok {
		t.Fatal("expected player to exist")
	}
	want := game.Player{ID: res.PlayerID, Username: "player", SessionID: res.SessionID}
	if diff := cmp.Diff(want, player); diff != "" {
		t.Errorf("player mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{game.EventPlayerJoined}, f.events.names()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if got, ok := f.events.last().Payload.(game.Player); !ok || got.ID != res.PlayerID {
		t.Errorf("expected player_joined payload for %s, got %#v", res.PlayerID, f.events.last().Payload)
	}
}

func TestJoin_ReusesExistingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Join(ctx)
	if err != nil {
		t.Fatalf("first Join failed: %v", err)
	}
	second, err := f.service.Join(ctx)
	if err != nil {
		t.Fatalf("second Join failed: %v", err)
	}

	if second.SessionID != first.SessionID {
		t.Errorf("expected session %s to be reused, got %s", first.SessionID, second.SessionID)
	}
	if second.PlayerID == first.PlayerID {
		t.Error("expected distinct player ids")
	}
	if n := f.sessionCount(t); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestJoin_SweepsExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.service.Join(ctx)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	f.now = f.now.Add(game.DefaultSessionTTL + time.Minute)
	fresh, err := f.service.Join(ctx)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if fresh.SessionID == old.SessionID {
		t.Error("expected a new session after the old one expired")
	}
	if _, ok := f.client.GetRaw(ctx, store.Doc(store.CollectionSessionPlayers, old.PlayerID)); ok {
		t.Error("expected player of expired session to be deleted")
	}
	if n := f.sessionCount(t); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestJoin_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.mem.FailNext("set", errors.New("unavailable"))

	_, err := f.service.Join(context.Background())
	if !errors.Is(err, game.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if len(f.events.names()) != 0 {
		t.Errorf("expected no broadcast, got %v", f.events.names())
	}
}

// --- Leave Tests ---

func TestLeave_LastPlayerDeletesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Join(ctx)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := f.service.Leave(ctx, res.PlayerID); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}

	if _, ok := f.client.GetRaw(ctx, store.Doc(store.CollectionSessionPlayers, res.PlayerID)); ok {
		t.Error("expected player to be deleted")
	}
	if _, ok := f.client.GetRaw(ctx, store.Doc(store.CollectionSessions, res.SessionID)); ok {
		t.Error("expected empty session to be deleted")
	}

	left, ok := f.events.last().Payload.(game.PlayerLeft)
	if !ok {
		t.Fatalf("expected PlayerLeft payload, got %#v", f.events.last().Payload)
	}
	if diff := cmp.Diff(game.PlayerLeft{ID: res.PlayerID, Username: "player"}, left); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestLeave_KeepsSessionWithRemainingPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _ := f.service.Join(ctx)
	second, _ := f.service.Join(ctx)

	if err := f.service.Leave(ctx, first.PlayerID); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if _, ok := f.client.GetRaw(ctx, store.Doc(store.CollectionSessions, second.SessionID)); !ok {
		t.Error("expected session to remain")
	}
}

func TestLeave_UnknownPlayer(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		playerID string
	}{
		{name: "missing document", playerID: "nobody"},
		{name: "empty id", playerID: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.service.Leave(context.Background(), tt.playerID); err != nil {
				t.Errorf("expected nil error, got %v", err)
			}
		})
	}
	if len(f.events.names()) != 0 {
		t.Errorf("expected no broadcast, got %v", f.events.names())
	}
}

// --- Move Tests ---

func TestMove_UpdatesPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, _ := f.service.Join(ctx)
	player, err := f.service.Move(ctx, res.PlayerID, 4, 7)
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if player.PositionX != 4 || player.PositionY != 7 {
		t.Errorf("expected position (4,7), got (%d,%d)", player.PositionX, player.PositionY)
	}

	stored, ok := store.Get(ctx, f.client, game.PlayerSchema, store.Doc(store.CollectionSessionPlayers, res.PlayerID))
	if !ok {
		t.Fatal("expected player to exist")
	}
	if stored.PositionX != 4 || stored.PositionY != 7 {
		t.Errorf("expected stored position (4,7), got (%d,%d)", stored.PositionX, stored.PositionY)
	}

	want := event{Name: game.EventPlayerMoved, Payload: game.PlayerMoved{ID: res.PlayerID, PositionX: 4, PositionY: 7}}
	if diff := cmp.Diff(want, f.events.last()); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestMove_UnknownPlayer(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Move(context.Background(), "nobody", 1, 1)
	if !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
	if len(f.events.names()) != 0 {
		t.Errorf("expected no broadcast, got %v", f.events.names())
	}
}

func TestMove_TransactionFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, _ := f.service.Join(ctx)
	f.mem.FailNext("transaction", errors.New("aborted"))

	_, err := f.service.Move(ctx, res.PlayerID, 2, 2)
	if !errors.Is(err, game.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

// --- Sweep Tests ---

func TestSweep(t *testing.T) {
	tests := []struct {
		name     string
		advance  time.Duration
		expected int
	}{
		{name: "fresh session kept", advance: time.Hour, expected: 0},
		{name: "expired session removed", advance: 3 * time.Hour, expected: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			if _, err := f.service.Join(ctx); err != nil {
				t.Fatalf("Join failed: %v", err)
			}

			f.now = f.now.Add(tt.advance)
			if got := f.service.Sweep(ctx); got != tt.expected {
				t.Errorf("expected %d swept, got %d", tt.expected, got)
			}
			if tt.expected > 0 && f.mem.Len() != 0 {
				t.Errorf("expected empty store, got %d documents", f.mem.Len())
			}
		})
	}
}

func TestSweep_CountsOnlyCommittedSessions(t *testing.T) {
	tests := []struct {
		name       string
		batchLimit int
		expected   int
		remaining  int
	}{
		{name: "failed group is not counted", batchLimit: 1, expected: 1, remaining: 1},
		{name: "failed final commit", batchLimit: 500, expected: 0, remaining: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			for _, id := range []string{"s1", "s2"} {
				f.client.Create(ctx, map[string]any{"gameState": string(game.WaitingForPlayers)}, store.Doc(store.CollectionSessions, id))
			}
			f.now = f.now.Add(3 * time.Hour)

			cfg := f.client.Config()
			cfg.BatchLimit = tt.batchLimit
			service := game.NewService(store.New(f.mem, cfg), f.events, game.Config{
				Logger: cfg.Logger,
				Now:    func() time.Time { return f.now },
			})
			f.mem.FailNext("commit", errors.New("unavailable"))

			if got := service.Sweep(ctx); got != tt.expected {
				t.Errorf("expected %d swept, got %d", tt.expected, got)
			}
			if f.mem.Len() != tt.remaining {
				t.Errorf("expected %d documents left, got %d", tt.remaining, f.mem.Len())
			}
		})
	}
}
