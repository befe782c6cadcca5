package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camcookie/maze/internal/config"
	"github.com/camcookie/maze/internal/game/maze"
	"github.com/camcookie/maze/internal/game/rng"
	"github.com/camcookie/maze/internal/game/room"
)

// archiveTimeout bounds a single finished-run archive write.
const archiveTimeout = 5 * time.Second

// Conn is one connected client from the protocol's perspective. The
// transport layer reads events from Outbox and feeds inbound messages to
// HandleMessage.
type Conn struct {
	// ID is the connection identifier, unique for the process lifetime.
	ID string
	// Outbox carries server events to this connection.
	Outbox *room.Outbox
}

// FinishedRun is the record handed to the archiver when a room's final
// level completes.
type FinishedRun struct {
	Code        string
	Levels      int
	FinishedAt  time.Time
	Leaderboard []room.LeaderboardEntry
}

// Archiver persists finished runs. Implementations must be safe for
// concurrent use.
type Archiver interface {
	SaveRun(ctx context.Context, run FinishedRun) error
}

// Handler is the session protocol state machine. One Handler serves the
// whole process; per-room serialization comes from each room's mutex, so
// traffic in different rooms proceeds in parallel while mutations of the
// same room never interleave.
type Handler struct {
	cfg      config.GameConfig
	registry *room.Registry
	src      rng.Source
	archiver Archiver
	logger   *zap.Logger

	mu    sync.Mutex
	codes map[string]string // connID → room code
}

// NewHandler creates a Handler.
//
// Precondition: registry, src, and logger must be non-nil. archiver may be
// nil (finished runs are not archived).
func NewHandler(cfg config.GameConfig, registry *room.Registry, src rng.Source, archiver Archiver, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: registry,
		src:      src,
		archiver: archiver,
		logger:   logger,
		codes:    make(map[string]string),
	}
}

// NewConn allocates a connection identity with a fresh outbox.
//
// Postcondition: The returned Conn is not yet a member of any room.
func (h *Handler) NewConn() *Conn {
	id := uuid.NewString()
	return &Conn{
		ID:     id,
		Outbox: room.NewOutbox(id, h.cfg.OutboxBuffer),
	}
}

// HandleMessage decodes one inbound envelope and applies it. Unknown types
// and malformed payloads are dropped; the failure taxonomy only surfaces
// join errors and kick notices to clients.
func (h *Handler) HandleMessage(conn *Conn, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Debug("dropping malformed message",
			zap.String("conn", conn.ID),
			zap.Error(err),
		)
		return
	}

	switch msg.Type {
	case TypeCreateRoom:
		var req CreateRoomRequest
		if json.Unmarshal(msg.Data, &req) == nil {
			h.handleCreate(conn, req)
		}
	case TypeJoinRoom:
		var req JoinRoomRequest
		if json.Unmarshal(msg.Data, &req) == nil {
			h.handleJoin(conn, req)
		}
	case TypeSetView:
		var req SetViewRequest
		if json.Unmarshal(msg.Data, &req) == nil {
			h.handleSetView(conn, req)
		}
	case TypeStartGame:
		var req StartGameRequest
		if json.Unmarshal(msg.Data, &req) == nil {
			h.handleStart(conn, req)
		}
	case TypePlayerMove:
		var req PlayerMoveRequest
		if json.Unmarshal(msg.Data, &req) == nil {
			h.handleMove(conn, req)
		}
	case TypeKick:
		var req KickRequest
		if json.Unmarshal(msg.Data, &req) == nil {
			h.handleKick(conn, req)
		}
	default:
		h.logger.Debug("dropping unknown message type",
			zap.String("conn", conn.ID),
			zap.String("type", msg.Type),
		)
	}
}

// Disconnect removes the connection from its room (if any), migrating host
// privileges and reaping the room when it empties.
//
// Postcondition: The connection's outbox is closed and its room membership
// is gone. Safe to call more than once.
func (h *Handler) Disconnect(conn *Conn) {
	code, ok := h.takeCode(conn.ID)
	if ok {
		h.leaveRoom(code, conn.ID)
	}
	_ = conn.Outbox.Close()
}

func (h *Handler) handleCreate(conn *Conn, req CreateRoomRequest) {
	if req.Name == "" {
		h.send(conn.Outbox, TypeJoinError, ErrorData{Message: "name must not be empty"})
		return
	}
	if _, member := h.lookupCode(conn.ID); member {
		return
	}

	r, _ := h.registry.Create(conn.ID, req.Name, req.Color, conn.Outbox)
	h.trackCode(conn.ID, r.Code)

	r.Mu.Lock()
	h.send(conn.Outbox, TypeRoomJoined, RoomJoinedData{
		Code:    r.Code,
		You:     conn.ID,
		Players: r.PlayerList(),
	})
	r.Mu.Unlock()

	h.logger.Info("room created",
		zap.String("room", r.Code),
		zap.String("host", conn.ID),
		zap.String("name", req.Name),
	)
}

func (h *Handler) handleJoin(conn *Conn, req JoinRoomRequest) {
	if req.Name == "" {
		h.send(conn.Outbox, TypeJoinError, ErrorData{Message: "name must not be empty"})
		return
	}
	if _, member := h.lookupCode(conn.ID); member {
		return
	}

	r, ok := h.registry.Get(req.Code)
	if !ok {
		h.send(conn.Outbox, TypeJoinError, ErrorData{Message: room.ErrRoomNotFound.Error()})
		return
	}

	p := &room.Player{
		ID:     conn.ID,
		Name:   req.Name,
		Color:  req.Color,
		Outbox: conn.Outbox,
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if err := r.AddPlayer(p); err != nil {
		h.send(conn.Outbox, TypeJoinError, ErrorData{Message: err.Error()})
		return
	}
	h.trackCode(conn.ID, r.Code)

	h.send(conn.Outbox, TypeRoomJoined, RoomJoinedData{
		Code:    r.Code,
		You:     conn.ID,
		Players: r.PlayerList(),
	})
	h.broadcast(r, TypePlayersUpdate, PlayersUpdateData{Players: r.PlayerList()})

	h.logger.Info("player joined",
		zap.String("room", r.Code),
		zap.String("conn", conn.ID),
		zap.String("name", req.Name),
		zap.Int("players", len(r.Players)),
	)
}

func (h *Handler) handleSetView(conn *Conn, req SetViewRequest) {
	r, ok := h.registry.Get(req.Code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	// Host-only display hint; non-host requests are a silent no-op.
	if r.HostID == conn.ID {
		r.View = req.ViewMode
	}
}

func (h *Handler) handleStart(conn *Conn, req StartGameRequest) {
	r, ok := h.registry.Get(req.Code)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostID != conn.ID || r.State != room.StateLobby {
		return
	}
	if req.MaxLevels < 1 || req.MaxLevels > h.cfg.MaxLevelCap {
		h.logger.Debug("rejecting start with invalid level count",
			zap.String("room", r.Code),
			zap.Int("max_levels", req.MaxLevels),
		)
		return
	}

	start := time.Now()
	levels := make([]*maze.Maze, req.MaxLevels)
	for i := range levels {
		levels[i] = maze.Generate(h.cfg.GridSize, h.src)
	}
	r.Start(levels)

	h.broadcast(r, TypeGameStarted, GameStartedData{
		Players:   r.PlayerList(),
		MaxLevels: r.MaxLevels,
		GridSize:  h.cfg.GridSize,
		Level:     0,
		Layout:    levels[0].Walls(),
	})

	h.logger.Info("game started",
		zap.String("room", r.Code),
		zap.Int("levels", r.MaxLevels),
		zap.Int("players", len(r.Players)),
		zap.Duration("generation", time.Since(start)),
	)
}

func (h *Handler) handleMove(conn *Conn, req PlayerMoveRequest) {
	r, ok := h.registry.Get(req.Code)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	p := r.Player(conn.ID)
	lvl := r.ActiveLevel()
	if p == nil || lvl == nil {
		return
	}
	if lvl.IsWall(req.Pos.X, req.Pos.Y) {
		// Out-of-bounds and wall destinations are rejected outright,
		// not corrected: no state change, no broadcast.
		return
	}

	p.Pos = req.Pos
	h.broadcast(r, TypePlayersUpdate, PlayersUpdateData{Players: r.PlayerList()})

	if req.Pos != lvl.Exit() {
		return
	}

	p.Score++
	if r.CurrentLevel+1 < r.MaxLevels {
		r.AdvanceLevel()
		h.broadcast(r, TypeNextLevel, NextLevelData{
			Level:  r.CurrentLevel,
			Layout: r.Levels[r.CurrentLevel].Walls(),
		})
		return
	}

	r.State = room.StateFinished
	board := r.Leaderboard()
	h.broadcast(r, TypeLevelComplete, LevelCompleteData{Leaderboard: board})

	h.logger.Info("run finished",
		zap.String("room", r.Code),
		zap.String("winner_conn", conn.ID),
		zap.Int("levels", r.MaxLevels),
		zap.Int("players", len(r.Players)),
	)

	if h.archiver != nil {
		run := FinishedRun{
			Code:        r.Code,
			Levels:      r.MaxLevels,
			FinishedAt:  time.Now().UTC(),
			Leaderboard: board,
		}
		go h.archive(run)
	}
}

func (h *Handler) handleKick(conn *Conn, req KickRequest) {
	r, ok := h.registry.Get(req.Code)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostID != conn.ID || req.TargetID == conn.ID {
		return
	}
	target := r.Player(req.TargetID)
	if target == nil {
		return
	}

	// The kicked connection hears about it before the membership
	// broadcast can reach it through any other path.
	h.send(target.Outbox, TypeError, ErrorData{Message: "You were kicked"})

	r.RemovePlayer(req.TargetID)
	h.untrackCode(req.TargetID)
	h.broadcast(r, TypePlayersUpdate, PlayersUpdateData{Players: r.PlayerList()})

	h.logger.Info("player kicked",
		zap.String("room", r.Code),
		zap.String("host", conn.ID),
		zap.String("target", req.TargetID),
	)
}

// leaveRoom applies a disconnect to the given room.
func (h *Handler) leaveRoom(code, connID string) {
	r, ok := h.registry.Get(code)
	if !ok {
		return
	}

	r.Mu.Lock()
	removed, hostChanged := r.RemovePlayer(connID)
	empty := r.Empty()
	if removed != nil && !empty {
		h.broadcast(r, TypePlayersUpdate, PlayersUpdateData{Players: r.PlayerList()})
		if hostChanged {
			h.broadcast(r, TypeHostChanged, HostChangedData{HostID: r.HostID})
		}
	}
	r.Mu.Unlock()

	if removed == nil {
		return
	}
	if empty {
		h.registry.Delete(code)
		h.logger.Info("room reaped",
			zap.String("room", code),
		)
	}
	h.logger.Info("player left",
		zap.String("room", code),
		zap.String("conn", connID),
		zap.Bool("host_migrated", hostChanged),
	)
}

// archive writes one finished run, logging failure rather than surfacing it
// to players.
func (h *Handler) archive(run FinishedRun) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := h.archiver.SaveRun(ctx, run); err != nil {
		h.logger.Error("archiving finished run",
			zap.String("room", run.Code),
			zap.Error(err),
		)
	}
}

// broadcast pushes a versioned event to every member of r.
//
// Precondition: caller holds r.Mu, so every outbox observes broadcasts in
// emission order.
func (h *Handler) broadcast(r *room.Room, typ string, data any) {
	evt := Event{Type: typ, Version: r.NextVersion(), Data: data}
	for _, p := range r.PlayerList() {
		if err := p.Outbox.Push(evt); err != nil {
			h.logger.Warn("dropping event for slow or gone client",
				zap.String("room", r.Code),
				zap.String("conn", p.ID),
				zap.String("type", typ),
				zap.Error(err),
			)
		}
	}
}

// send pushes an unversioned targeted event to one outbox.
func (h *Handler) send(o *room.Outbox, typ string, data any) {
	if err := o.Push(Event{Type: typ, Data: data}); err != nil {
		h.logger.Debug("dropping targeted event",
			zap.String("conn", o.ConnID()),
			zap.String("type", typ),
			zap.Error(err),
		)
	}
}

func (h *Handler) lookupCode(connID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	code, ok := h.codes[connID]
	return code, ok
}

func (h *Handler) trackCode(connID, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.codes[connID] = code
}

func (h *Handler) untrackCode(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.codes, connID)
}

func (h *Handler) takeCode(connID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	code, ok := h.codes[connID]
	if ok {
		delete(h.codes, connID)
	}
	return code, ok
}
