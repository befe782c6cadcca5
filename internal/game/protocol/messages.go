// Package protocol implements the message-driven session state machine: it
// decodes client intents, mutates rooms through the registry, and emits the
// broadcasts that keep every client mirror in sync.
package protocol

import (
	"encoding/json"

	"github.com/camcookie/maze/internal/game/maze"
	"github.com/camcookie/maze/internal/game/room"
)

// Client-to-server message types.
const (
	TypeCreateRoom = "createRoom"
	TypeJoinRoom   = "joinRoom"
	TypeSetView    = "setView"
	TypeStartGame  = "startGame"
	TypePlayerMove = "playerMove"
	TypeKick       = "kick"
)

// Server-to-client event types.
const (
	TypeRoomJoined    = "roomJoined"
	TypePlayersUpdate = "playersUpdate"
	TypeHostChanged   = "hostChanged"
	TypeGameStarted   = "gameStarted"
	TypeNextLevel     = "nextLevel"
	TypeLevelComplete = "levelComplete"
	TypeJoinError     = "joinError"
	TypeError         = "error"
)

// ClientMessage is the inbound wire envelope. Data is decoded per Type.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is the outbound wire envelope. Version is the room's monotonic
// broadcast counter; targeted events (acks and errors) carry none.
type Event struct {
	Type    string `json:"type"`
	Version uint64 `json:"version,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// CreateRoomRequest asks for a fresh room with the sender as host.
type CreateRoomRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// JoinRoomRequest asks to join a live room by code.
type JoinRoomRequest struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// SetViewRequest is the host's display-mode hint. It has no gameplay
// effect.
type SetViewRequest struct {
	Code     string `json:"code"`
	ViewMode string `json:"viewMode"`
}

// StartGameRequest begins the run. Host only.
type StartGameRequest struct {
	Code      string `json:"code"`
	MaxLevels int    `json:"maxLevels"`
}

// PlayerMoveRequest asks to occupy a new grid position.
type PlayerMoveRequest struct {
	Code string    `json:"code"`
	Pos  maze.Cell `json:"pos"`
}

// KickRequest removes a player from the room. Host only.
type KickRequest struct {
	Code     string `json:"code"`
	TargetID string `json:"targetId"`
}

// RoomJoinedData acknowledges a successful create or join to the requesting
// connection only.
type RoomJoinedData struct {
	Code    string         `json:"code"`
	You     string         `json:"you"`
	Players []*room.Player `json:"players"`
}

// PlayersUpdateData is the full player snapshot, broadcast room-wide after
// any membership or position change.
type PlayersUpdateData struct {
	Players []*room.Player `json:"players"`
}

// HostChangedData announces host migration.
type HostChangedData struct {
	HostID string `json:"hostId"`
}

// GameStartedData announces the Lobby to Running transition, carrying the
// first level's layout so clients need no further round trip to render.
type GameStartedData struct {
	Players   []*room.Player `json:"players"`
	MaxLevels int            `json:"maxLevels"`
	GridSize  int            `json:"gridSize"`
	Level     int            `json:"level"`
	Layout    []maze.Cell    `json:"layout"`
}

// NextLevelData announces a level advance. The layout is shipped explicitly
// so a client that missed gameStarted can still recover the level.
type NextLevelData struct {
	Level  int         `json:"level"`
	Layout []maze.Cell `json:"layout"`
}

// LevelCompleteData carries the final leaderboard. Terminal for the run.
type LevelCompleteData struct {
	Leaderboard []room.LeaderboardEntry `json:"leaderboard"`
}

// ErrorData is a user-visible failure message, targeted to one connection.
type ErrorData struct {
	Message string `json:"message"`
}
