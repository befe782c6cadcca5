package room

import (
	"errors"
	"slices"
	"sync"

	"github.com/camcookie/maze/internal/game/maze"
)

// Join failure taxonomy. These are the only room errors surfaced to a
// requesting client; everything else in the game core fails silently.
var (
	// ErrRoomNotFound means no live room matches the requested code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNameTaken means the display name is already in use in the room.
	ErrNameTaken = errors.New("name already taken")
	// ErrAlreadyStarted means the room's run has begun; codes are
	// single-use once the host starts the game.
	ErrAlreadyStarted = errors.New("game already started")
)

// State is the lifecycle phase of a room's run.
type State string

const (
	// StateLobby is the pre-game phase: the room is joinable and the host
	// may start the game.
	StateLobby State = "lobby"
	// StateRunning means levels are in play.
	StateRunning State = "running"
	// StateFinished means the final level was completed and the
	// leaderboard has been emitted.
	StateFinished State = "finished"
)

// Player is one connected participant of a room.
type Player struct {
	// ID is the connection identifier.
	ID string `json:"id"`
	// Name is the display name, unique within the room.
	Name string `json:"name"`
	// Color is a cosmetic display attribute the core never inspects.
	Color string `json:"color"`
	// Pos is the player's grid coordinate on the active level.
	Pos maze.Cell `json:"pos"`
	// Score counts levels completed by this player within the run.
	Score int `json:"score"`
	// Outbox carries server events to this player's connection.
	Outbox *Outbox `json:"-"`
}

// LeaderboardEntry is one row of the end-of-run ranking.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Room is one isolated multiplayer session.
//
// Invariant: while Players is non-empty, HostID names exactly one of its
// keys. CurrentLevel never decreases within a run. A player's Pos is never
// a wall cell of the active level.
//
// All fields except Code are guarded by Mu; every mutation of a room must
// hold Mu for its full extent, including the pushes that broadcast the
// mutation, so clients observe events in emission order.
type Room struct {
	// Code is the shareable identifier, stable for the room's lifetime.
	Code string

	// Mu serializes all mutation of this room. Never take the registry
	// lock while holding Mu.
	Mu sync.Mutex

	// HostID is the connection currently holding host privileges.
	HostID string
	// Players maps connection ID to player state.
	Players map[string]*Player
	// Order holds connection IDs in join order, for host promotion and
	// leaderboard tie breaking.
	Order []string
	// Levels is the run's maze sequence, generated once at game start.
	Levels []*maze.Maze
	// CurrentLevel indexes Levels while the run is in progress.
	CurrentLevel int
	// MaxLevels is the level count chosen by the host at start.
	MaxLevels int
	// State is the run phase.
	State State
	// View is the host-set display-mode hint. It has no gameplay effect.
	View string

	version uint64
}

// Player returns the member with the given connection ID, or nil.
//
// Precondition: caller holds Mu.
func (r *Room) Player(connID string) *Player {
	return r.Players[connID]
}

// HasName reports whether any member uses the display name, matched
// case-sensitively.
//
// Precondition: caller holds Mu.
func (r *Room) HasName(name string) bool {
	for _, p := range r.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

// AddPlayer validates and inserts a new member at the grid origin.
//
// Precondition: caller holds Mu; p.ID must not already be a member.
// Postcondition: On error the room is unchanged. Returns ErrAlreadyStarted
// once the run has begun and ErrNameTaken on a display-name collision.
func (r *Room) AddPlayer(p *Player) error {
	if r.State != StateLobby {
		return ErrAlreadyStarted
	}
	if r.HasName(p.Name) {
		return ErrNameTaken
	}
	p.Pos = maze.Cell{}
	p.Score = 0
	r.Players[p.ID] = p
	r.Order = append(r.Order, p.ID)
	return nil
}

// RemovePlayer deletes a member and migrates host privileges if needed.
//
// Precondition: caller holds Mu.
// Postcondition: The player's outbox is closed. If the removed player was
// host and members remain, the earliest-joined survivor becomes host and
// hostChanged is true. removed is nil when connID was not a member.
func (r *Room) RemovePlayer(connID string) (removed *Player, hostChanged bool) {
	p, ok := r.Players[connID]
	if !ok {
		return nil, false
	}
	delete(r.Players, connID)
	r.Order = slices.DeleteFunc(r.Order, func(id string) bool { return id == connID })
	_ = p.Outbox.Close()

	if r.HostID == connID && len(r.Order) > 0 {
		r.HostID = r.Order[0]
		hostChanged = true
	}
	return p, hostChanged
}

// Empty reports whether the room has no members left.
//
// Precondition: caller holds Mu.
func (r *Room) Empty() bool {
	return len(r.Players) == 0
}

// PlayerList returns the members in join order, for wire snapshots.
//
// Precondition: caller holds Mu.
func (r *Room) PlayerList() []*Player {
	list := make([]*Player, 0, len(r.Order))
	for _, id := range r.Order {
		if p, ok := r.Players[id]; ok {
			list = append(list, p)
		}
	}
	return list
}

// Start begins the run with the given pre-generated levels.
//
// Precondition: caller holds Mu; len(levels) >= 1.
// Postcondition: Every member sits at the origin with score 0, the room is
// Running on level 0, and the code is no longer joinable.
func (r *Room) Start(levels []*maze.Maze) {
	r.Levels = levels
	r.MaxLevels = len(levels)
	r.CurrentLevel = 0
	r.State = StateRunning
	for _, p := range r.Players {
		p.Pos = maze.Cell{}
		p.Score = 0
	}
}

// ActiveLevel returns the maze currently in play, or nil outside a run.
//
/// Precondition: caller holds Mu.
func (r *Room) ActiveLevel() *maze.Maze {
	if r.State != StateRunning || r.CurrentLevel >= len(r.Levels) {
		return nil
	}
	return r.Levels[r.CurrentLevel]
}

// AdvanceLevel moves the run to the next level and resets every member to
// the origin.
//
// Precondition: caller holds Mu; r.CurrentLevel+1 < r.MaxLevels.
func (r *Room) AdvanceLevel() {
	r.CurrentLevel++
	for _, p := range r.Players {
		p.Pos = maze.Cell{}
	}
}

// Leaderboard ranks members by descending score. Ties keep join order (the
// sort is stable over the join-order list).
//
// Precondition: caller holds Mu.
// Postcondition: The result is a permutation of the current members.
func (r *Room) Leaderboard() []LeaderboardEntry {
	players := r.PlayerList()
	slices.SortStableFunc(players, func(a, b *Player) int {
		return b.Score - a.Score
	})
	board := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		board[i] = LeaderboardEntry{Name: p.Name, Score: p.Score}
	}
	return board
}

// NextVersion advances and returns the room's broadcast counter. Room-wide
// events carry this value so clients can detect a missed message.
//
// Precondition: caller holds Mu.
func (r *Room) NextVersion() uint64 {
	r.version++
	return r.version
}
