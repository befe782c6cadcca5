package room

import (
	"strings"
	"sync"

	"github.com/camcookie/maze/internal/game/rng"
)

// codeAlphabet is the character set for room codes. Codes are uppercase so
// they survive being read aloud or typed from a shared link.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultCodeLength is the conventional room-code length.
const DefaultCodeLength = 4

// Registry tracks all live rooms by code. It is an injectable object, never
// package-level state, so tests construct a fresh one and a future
// distributed store can replace it behind the same surface.
//
// The registry lock guards only the code map. Mutating a room's contents is
// done under that room's own Mu, so traffic in different rooms never
// contends.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	codeLen  int
	src      rng.Source
	outboxSz int
}

// NewRegistry creates an empty Registry.
//
// Precondition: src must be non-nil; codeLen >= 1.
// Postcondition: Returns a Registry with no live rooms.
func NewRegistry(src rng.Source, codeLen, outboxSize int) *Registry {
	if codeLen < 1 {
		codeLen = DefaultCodeLength
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		codeLen:  codeLen,
		src:      src,
		outboxSz: outboxSize,
	}
}

// newCode builds a random room code.
//
// Precondition: caller holds mu.
func (g *Registry) newCode() string {
	b := make([]byte, g.codeLen)
	for i := range b {
		b[i] = codeAlphabet[g.src.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// Create allocates a room with a fresh non-colliding code and the initiator
// as sole player and host.
//
// Precondition: connID and name must be non-empty. outbox may be nil only
// in tests that never broadcast.
// Postcondition: The room is live and retrievable by its code, with exactly
// one member who is the host.
func (g *Registry) Create(connID, name, color string, outbox *Outbox) (*Room, *Player) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.newCode()
	for g.rooms[code] != nil {
		code = g.newCode()
	}

	if outbox == nil {
		outbox = NewOutbox(connID, g.outboxSz)
	}
	p := &Player{
		ID:     connID,
		Name:   name,
		Color:  color,
		Outbox: outbox,
	}
	r := &Room{
		Code:    code,
		HostID:  connID,
		Players: map[string]*Player{connID: p},
		Order:   []string{connID},
		State:   StateLobby,
	}
	g.rooms[code] = r
	return r, p
}

// Get returns the live room for the given code, case-normalized to
// uppercase.
func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[strings.ToUpper(code)]
	return r, ok
}

// Delete reaps a room from the registry. Called once a room has emptied.
//
// Postcondition: The code is no longer retrievable and may be reissued.
func (g *Registry) Delete(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, strings.ToUpper(code))
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// NewOutbox creates an outbox sized by the registry's configuration, for
// players joining an existing room.
func (g *Registry) NewOutbox(connID string) *Outbox {
	return NewOutbox(connID, g.outboxSz)
}
