// Package client provides a websocket session that mirrors the server's
// view of a room. It is the programmatic counterpart of the browser client:
// requests are fire-and-forget, and state arrives through server events.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/camcookie/maze/internal/game/maze"
	"github.com/camcookie/maze/internal/game/protocol"
	"github.com/camcookie/maze/internal/game/room"
)

// Session is a connected client. All accessors return snapshots and are safe
// for concurrent use; the mirror is updated by a background read loop.
type Session struct {
	sock   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu          sync.RWMutex
	code        string
	you         string
	hostID      string
	players     []room.Player
	state       room.State
	level       int
	maxLevels   int
	layout      []maze.Cell
	leaderboard []room.LeaderboardEntry
	version     uint64
	lastErr     string

	done     chan struct{}
	doneOnce sync.Once
}

// Dial connects to a server's websocket endpoint and starts the read loop.
//
// Precondition: url must be a ws:// or wss:// endpoint; logger must be
// non-nil.
// Postcondition: Returns a connected Session whose mirror updates until the
// connection drops or Close is called.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Session, error) {
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	s := &Session{
		sock:   sock,
		logger: logger,
		state:  room.StateLobby,
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Close tears down the connection.
//
// Postcondition: Done() is closed and no further mirror updates occur.
func (s *Session) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.sock.Close()
}

// Done is closed when the session's read loop has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// RequestCreate asks the server to create a room with this player as host.
func (s *Session) RequestCreate(name, color string) error {
	return s.send(protocol.TypeCreateRoom, protocol.CreateRoomRequest{Name: name, Color: color})
}

// RequestJoin asks the server to add this player to an existing room.
func (s *Session) RequestJoin(code, name, color string) error {
	return s.send(protocol.TypeJoinRoom, protocol.JoinRoomRequest{Code: code, Name: name, Color: color})
}

// RequestSetView stores a view-mode hint with the room. Host only.
func (s *Session) RequestSetView(viewMode string) error {
	return s.send(protocol.TypeSetView, protocol.SetViewRequest{Code: s.Code(), ViewMode: viewMode})
}

// RequestStart asks the server to start the game. Host only.
func (s *Session) RequestStart(maxLevels int) error {
	return s.send(protocol.TypeStartGame, protocol.StartGameRequest{Code: s.Code(), MaxLevels: maxLevels})
}

// Direction is a single-cell movement on the grid.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

func (d Direction) delta() maze.Cell {
	switch d {
	case Up:
		return maze.Cell{Y: -1}
	case Down:
		return maze.Cell{Y: 1}
	case Left:
		return maze.Cell{X: -1}
	default:
		return maze.Cell{X: 1}
	}
}

// RequestMove asks the server to move this player to pos. The local mirror
// is updated optimistically; the next roster broadcast wins.
func (s *Session) RequestMove(pos maze.Cell) error {
	s.mu.Lock()
	for i := range s.players {
		if s.players[i].ID == s.you {
			s.players[i].Pos = pos
		}
	}
	s.mu.Unlock()
	return s.send(protocol.TypePlayerMove, protocol.PlayerMoveRequest{Code: s.Code(), Pos: pos})
}

// RequestMoveStep moves this player one cell in the given direction from its
// mirrored position.
func (s *Session) RequestMoveStep(dir Direction) error {
	d := dir.delta()
	s.mu.RLock()
	pos := maze.Cell{}
	for i := range s.players {
		if s.players[i].ID == s.you {
			pos = s.players[i].Pos
		}
	}
	s.mu.RUnlock()
	return s.RequestMove(maze.Cell{X: pos.X + d.X, Y: pos.Y + d.Y})
}

// RequestKick asks the server to remove another player. Host only.
func (s *Session) RequestKick(targetID string) error {
	return s.send(protocol.TypeKick, protocol.KickRequest{Code: s.Code(), TargetID: targetID})
}

// Code returns the joined room code, or empty before any roomJoined ack.
func (s *Session) Code() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code
}

// You returns this connection's player ID as assigned by the server.
func (s *Session) You() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.you
}

// HostID returns the current host's player ID.
func (s *Session) HostID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hostID
}

// Players returns a copy of the mirrored roster in join order.
func (s *Session) Players() []room.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]room.Player, len(s.players))
	copy(out, s.players)
	return out
}

// State returns the mirrored room state.
func (s *Session) State() room.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Level returns the zero-based current level index.
func (s *Session) Level() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// MaxLevels returns the configured level count for the running game.
func (s *Session) MaxLevels() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxLevels
}

// Layout returns a copy of the current level's wall coordinates.
func (s *Session) Layout() []maze.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]maze.Cell, len(s.layout))
	copy(out, s.layout)
	return out
}

// Leaderboard returns the final standings, set once the run finishes.
func (s *Session) Leaderboard() []room.LeaderboardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]room.LeaderboardEntry, len(s.leaderboard))
	copy(out, s.leaderboard)
	return out
}

// LastError returns the most recent joinError or error message, or empty.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Version returns the highest room event version applied so far.
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Session) send(typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", typ, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.sock.WriteJSON(protocol.ClientMessage{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("sending %s: %w", typ, err)
	}
	return nil
}

// wireEvent is the serialized event envelope. Data stays raw until the type
// is known.
type wireEvent struct {
	Type    string          `json:"type"`
	Version uint64          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

func (s *Session) readLoop() {
	defer s.doneOnce.Do(func() { close(s.done) })

	for {
		var evt wireEvent
		if err := s.sock.ReadJSON(&evt); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("session read ended", zap.Error(err))
			}
			return
		}
		s.apply(evt)
	}
}

// apply folds one server event into the mirror. Versioned events that arrive
// out of order are dropped; targeted events carry no version and always
// apply.
func (s *Session) apply(evt wireEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Version > 0 {
		if evt.Version <= s.version {
			s.logger.Debug("dropping stale event",
				zap.String("type", evt.Type),
				zap.Uint64("version", evt.Version),
			)
			return
		}
		s.version = evt.Version
	}

	switch evt.Type {
	case protocol.TypeRoomJoined:
		var data struct {
			Code    string        `json:"code"`
			You     string        `json:"you"`
			Players []room.Player `json:"players"`
		}
		if s.decode(evt, &data) {
			s.code = data.Code
			s.you = data.You
			s.players = data.Players
			if len(data.Players) > 0 {
				s.hostID = data.Players[0].ID
			}
		}
	case protocol.TypePlayersUpdate:
		var data struct {
			Players []room.Player `json:"players"`
		}
		if s.decode(evt, &data) {
			s.players = data.Players
		}
	case protocol.TypeHostChanged:
		var data struct {
			HostID string `json:"hostId"`
		}
		if s.decode(evt, &data) {
			s.hostID = data.HostID
		}
	case protocol.TypeGameStarted:
		var data struct {
			Players   []room.Player `json:"players"`
			MaxLevels int           `json:"maxLevels"`
			Level     int           `json:"level"`
			Layout    []maze.Cell   `json:"layout"`
		}
		if s.decode(evt, &data) {
			s.players = data.Players
			s.maxLevels = data.MaxLevels
			s.level = data.Level
			s.layout = data.Layout
			s.state = room.StateRunning
		}
	case protocol.TypeNextLevel:
		var data struct {
			Level  int         `json:"level"`
			Layout []maze.Cell `json:"layout"`
		}
		if s.decode(evt, &data) {
			s.level = data.Level
			s.layout = data.Layout
			// The server resets positions on advance; mirror that
			// until the next roster broadcast.
			for i := range s.players {
				s.players[i].Pos = maze.Cell{}
			}
		}
	case protocol.TypeLevelComplete:
		var data struct {
			Leaderboard []room.LeaderboardEntry `json:"leaderboard"`
		}
		if s.decode(evt, &data) {
			s.leaderboard = data.Leaderboard
			s.state = room.StateFinished
		}
	case protocol.TypeJoinError, protocol.TypeError:
		var data struct {
			Message string `json:"message"`
		}
		if s.decode(evt, &data) {
			s.lastErr = data.Message
		}
	default:
		s.logger.Debug("ignoring unknown event type", zap.String("type", evt.Type))
	}
}

func (s *Session) decode(evt wireEvent, into any) bool {
	if err := json.Unmarshal(evt.Data, into); err != nil {
		s.logger.Warn("decoding event",
			zap.String("type", evt.Type),
			zap.Error(err),
		)
		return false
	}
	return true
}
