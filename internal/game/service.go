package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/bomberhub/store"
)

var (
	// ErrPlayerNotFound is returned when the player does not exist.
	ErrPlayerNotFound = errors.New("game: player not found")

	// ErrStore is returned when a store operation failed. The failure
	// itself is logged by the store client.
	ErrStore = errors.New("game: store operation failed")
)

// DefaultSessionTTL is the age after which a session is swept.
const DefaultSessionTTL = 2 * time.Hour

// Broadcaster delivers game events to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Config holds configuration for the Service.
type Config struct {
	// SessionTTL is the age after which sessions are swept.
	// Default: 2h
	SessionTTL time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// NewID defaults to uuid.NewString.
	NewID func() string
}

func (c *Config) validate() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
}

// Service runs the session and player lifecycle.
type Service struct {
	client      *store.Client
	broadcaster Broadcaster
	config      Config
}

// NewService creates a new Service.
func NewService(client *store.Client, broadcaster Broadcaster, config Config) *Service {
	config.validate()
	return &Service{
		client:      client,
		broadcaster: broadcaster,
		config:      config,
	}
}

// Join sweeps inactive sessions, then adds a new player to the first
// existing session or to a new one.
func (s *Service) Join(ctx context.Context) (JoinResult, error) {
	s.Sweep(ctx)

	var sessionID string
	existing := store.Query(ctx, s.client, SessionSchema, store.Scope(store.CollectionSessions), store.Limit(1))
	if len(existing) > 0 {
		sessionID = existing[0].ID
	} else {
		session := Session{ID: s.config.NewID(), GameState: WaitingForPlayers}
		sessionID = s.client.Create(ctx, SessionSchema.FromDomain(session), store.Doc(store.CollectionSessions, session.ID))
		if sessionID == "" {
			return JoinResult{}, fmt.Errorf("create session: %w", ErrStore)
		}
	}

	player := Player{
		ID:        s.config.NewID(),
		Username:  DefaultUsername,
		SessionID: sessionID,
	}
	if s.client.Create(ctx, PlayerSchema.FromDomain(player), store.Doc(store.CollectionSessionPlayers, player.ID)) == "" {
		return JoinResult{}, fmt.Errorf("create player: %w", ErrStore)
	}

	s.config.Logger.Info("player joined", "playerId", player.ID, "sessionId", sessionID)
	s.broadcaster.Broadcast(EventPlayerJoined, player)
	return JoinResult{SessionID: sessionID, PlayerID: player.ID}, nil
}

// Leave removes the player and deletes its session once no players remain.
// Leaving with an unknown player id is a no-op.
func (s *Service) Leave(ctx context.Context, playerID string) error {
	if playerID == "" {
		return nil
	}
	player, ok := store.Get(ctx, s.client, PlayerSchema, store.Doc(store.CollectionSessionPlayers, playerID))
	if !ok {
		return nil
	}

	if !s.client.Delete(ctx, store.Doc(store.CollectionSessionPlayers, playerID)) {
		return fmt.Errorf("delete player: %w", ErrStore)
	}
	s.config.Logger.Info("player left", "playerId", playerID, "sessionId", player.SessionID)
	s.broadcaster.Broadcast(EventPlayerLeft, PlayerLeft{ID: player.ID, Username: player.Username})

	remaining := s.client.QueryRaw(ctx, store.Scope(store.CollectionSessionPlayers),
		store.Where(SessionKeyField, store.OpEqual, player.SessionID),
		store.Limit(1),
	)
	if len(remaining) > 0 {
		return nil
	}
	if !s.client.Delete(ctx, store.Doc(store.CollectionSessions, player.SessionID)) {
		return fmt.Errorf("delete session: %w", ErrStore)
	}
	s.config.Logger.Info("session closed", "sessionId", player.SessionID)
	return nil
}

// Move sets the player's position in a transaction and returns the updated
// player.
func (s *Service) Move(ctx context.Context, playerID string, x, y int) (Player, error) {
	if playerID == "" {
		return Player{}, ErrPlayerNotFound
	}
	addr := store.Doc(store.CollectionSessionPlayers, playerID)

	missing := false
	player, ok := store.Transaction(ctx, s.client, addr, func(ctx context.Context, tx *store.Tx, snap *store.Snapshot) (Player, error) {
		missing = !snap.Exists
		if missing {
			return Player{}, ErrPlayerNotFound
		}
		p, err := PlayerSchema.ToDomain(snap.Raw())
		if err != nil {
			return Player{}, err
		}
		p.PositionX, p.PositionY = x, y
		if err := tx.Update(map[string]any{"positionX": x, "positionY": y}, addr); err != nil {
			return Player{}, err
		}
		return p, nil
	})
	if !ok {
		if missing {
			return Player{}, ErrPlayerNotFound
		}
		return Player{}, fmt.Errorf("move player: %w", ErrStore)
	}

	s.broadcaster.Broadcast(EventPlayerMoved, PlayerMoved{ID: player.ID, PositionX: x, PositionY: y})
	return player, nil
}

// Sweep deletes the sessions older than the session TTL together with their
// players and returns the number of sessions whose delete was committed.
func (s *Service) Sweep(ctx context.Context) int {
	cutoff := s.config.Now().Add(-s.config.SessionTTL)
	expired := store.Query(ctx, s.client, SessionSchema, store.Scope(store.CollectionSessions),
		store.Where("dateCreated", store.OpLess, cutoff),
	)
	if len(expired) == 0 {
		return 0
	}

	batch := s.client.Batch()
	swept, pending, commits := 0, 0, 0
	// settle tracks session deletes per committed group. A refused mutation
	// never entered the batch; any other error lost the whole group.
	settle := func(err error, session bool) bool {
		switch {
		case errors.Is(err, store.ErrInvalidAddress), errors.Is(err, store.ErrBatchClosed):
			return false
		case err != nil:
			pending = 0
			commits = batch.Commits()
			return false
		}
		if session {
			pending++
		}
		if batch.Commits() > commits {
			swept += pending
			pending = 0
			commits = batch.Commits()
		}
		return true
	}

	for _, session := range expired {
		if !settle(batch.Delete(ctx, store.Doc(store.CollectionSessions, session.ID)), true) {
			continue
		}
		players := s.client.QueryRaw(ctx, store.Scope(store.CollectionSessionPlayers),
			store.Where(SessionKeyField, store.OpEqual, session.ID),
		)
		for _, p := range players {
			id, _ := p["id"].(string)
			settle(batch.Delete(ctx, store.Doc(store.CollectionSessionPlayers, id)), false)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		s.config.Logger.Error("sweep inactive sessions", "error", err, "lost", pending)
	} else {
		swept += pending
	}
	s.config.Logger.Info("swept inactive sessions",
		"expired", len(expired),
		"sessions", swept,
		"commits", batch.Commits(),
	)
	return swept
}

// Sessions lists every session.
func (s *Service) Sessions(ctx context.Context) []Session {
	return store.Query(ctx, s.client, SessionSchema, store.Scope(store.CollectionSessions),
		store.OrderBy("dateCreated", store.Asc),
	)
}
