// Package game implements the session and player lifecycle of the game
// backend on top of the document store.
package game

import (
	"time"

	"github.com/jacentio/bomberhub/store"
)

// GameState is the lifecycle state of a session.
type GameState string

const (
	WaitingForPlayers GameState = "waitingForPlayers"
	InProgress        GameState = "inProgress"
	Finished          GameState = "finished"
)

// Session groups the players of one game.
type Session struct {
	ID          string    `doc:"id" json:"id"`
	GameState   GameState `doc:"gameState" json:"gameState"`
	DateCreated time.Time `doc:"dateCreated,omitempty" json:"dateCreated"`
}

// Player is a participant of a session.
type Player struct {
	ID        string `doc:"id" json:"id"`
	Username  string `doc:"username" json:"username"`
	PositionX int    `doc:"positionX" json:"positionX"`
	PositionY int    `doc:"positionY" json:"positionY"`
	SessionID string `doc:"sessionId" json:"sessionId"`
}

// DefaultUsername is given to every joining player.
const DefaultUsername = "player"

var (
	SessionSchema = store.MustSchema(Session{GameState: WaitingForPlayers})
	PlayerSchema  = store.MustSchema(Player{Username: DefaultUsername})
)

// SessionKeyField is the player field holding the session id.
const SessionKeyField = "sessionId"

// Relationships returns the cascade relationships of the game collections.
func Relationships() *store.Registry {
	r := store.NewRegistry()
	r.Register(store.Relationship{
		ParentCollection: store.CollectionSessions,
		ChildCollection:  store.CollectionSessionPlayers,
		ParentKeyField:   SessionKeyField,
	})
	return r
}

// Broadcast event names.
const (
	EventPlayerJoined = "player_joined"
	EventPlayerLeft   = "player_left"
	EventPlayerMoved  = "player_moved"
)

// PlayerLeft is the payload of EventPlayerLeft.
type PlayerLeft struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PlayerMoved is the payload of EventPlayerMoved.
type PlayerMoved struct {
	ID        string `json:"id"`
	PositionX int    `json:"positionX"`
	PositionY int    `json:"positionY"`
}

// JoinResult identifies the session and player created by Join.
type JoinResult struct {
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id"`
}
