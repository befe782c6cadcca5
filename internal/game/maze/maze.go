// Package maze provides the procedural maze generator and the grid layout
// type shared by the server core and the client mirror.
package maze

import (
	"github.com/camcookie/maze/internal/game/rng"
)

// DefaultSize is the conventional grid edge length for a level.
const DefaultSize = 25

// Cell is a grid coordinate. X is the column, Y is the row.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Maze is one generated level layout: a square grid where every cell is
// either a wall or open corridor.
//
// Invariant: the set of open cells is fully connected and contains the
// origin (0,0). A Maze is immutable once generated.
type Maze struct {
	size int
	open [][]bool
}

// Generate carves a maze of the given edge length using a randomized
// depth-first walk from the origin, stepping two cells at a time so a
// one-cell wall lattice remains between corridors. The walk uses an
// explicit stack rather than recursion, so the grid area only bounds heap
// growth, never call-stack depth.
//
// Precondition: size >= 1; src must be non-nil.
// Postcondition: every open cell is reachable from the origin, and the
// result contains no cycles (a perfect maze). Generation always succeeds.
func Generate(size int, src rng.Source) *Maze {
	if size < 1 {
		panic("maze: Generate called with size < 1")
	}

	open := make([][]bool, size)
	visited := make([][]bool, size)
	for y := range open {
		open[y] = make([]bool, size)
		visited[y] = make([]bool, size)
	}

	m := &Maze{size: size, open: open}

	open[0][0] = true
	visited[0][0] = true
	stack := []Cell{{X: 0, Y: 0}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]

		dirs := []Cell{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}
		rng.Shuffle(dirs, src)

		advanced := false
		for _, d := range dirs {
			nx, ny := cur.X+d.X*2, cur.Y+d.Y*2
			if nx < 0 || nx >= size || ny < 0 || ny >= size || visited[ny][nx] {
				continue
			}
			// Open the wall between the current cell and the neighbor,
			// then the neighbor itself.
			open[cur.Y+d.Y][cur.X+d.X] = true
			open[ny][nx] = true
			visited[ny][nx] = true
			stack = append(stack, Cell{X: nx, Y: ny})
			advanced = true
			break
		}
		if !advanced {
			stack = stack[:len(stack)-1]
		}
	}

	return m
}

// FromWalls reconstructs a Maze from a wire-format wall list, as shipped in
// gameStarted and nextLevel payloads. Coordinates outside the grid are
// ignored.
//
// Precondition: size >= 1.
func FromWalls(size int, walls []Cell) *Maze {
	if size < 1 {
		panic("maze: FromWalls called with size < 1")
	}
	open := make([][]bool, size)
	for y := range open {
		open[y] = make([]bool, size)
		for x := range open[y] {
			open[y][x] = true
		}
	}
	for _, w := range walls {
		if w.X >= 0 && w.X < size && w.Y >= 0 && w.Y < size {
			open[w.Y][w.X] = false
		}
	}
	return &Maze{size: size, open: open}
}

// Size returns the grid edge length.
func (m *Maze) Size() int {
	return m.size
}

// Origin returns the start cell shared by all players.
func (m *Maze) Origin() Cell {
	return Cell{X: 0, Y: 0}
}

// Exit returns the goal cell: the far corner of the grid.
func (m *Maze) Exit() Cell {
	return Cell{X: m.size - 1, Y: m.size - 1}
}

// InBounds reports whether (x, y) lies on the grid.
func (m *Maze) InBounds(x, y int) bool {
	return x >= 0 && x < m.size && y >= 0 && y < m.size
}

// IsWall reports whether (x, y) is a wall cell. Out-of-bounds coordinates
// are reported as walls.
func (m *Maze) IsWall(x, y int) bool {
	if !m.InBounds(x, y) {
		return true
	}
	return !m.open[y][x]
}

// Walls returns all wall coordinates in row-major order, the wire format
// used by layout-bearing broadcasts.
//
// Postcondition: the returned slice and the open cells together cover the
// grid exactly.
func (m *Maze) Walls() []Cell {
	var walls []Cell
	for y := 0; y < m.size; y++ {
		for x := 0; x < m.size; x++ {
			if !m.open[y][x] {
				walls = append(walls, Cell{X: x, Y: y})
			}
		}
	}
	return walls
}

// OpenCount returns the number of open cells.
func (m *Maze) OpenCount() int {
	n := 0
	for y := range m.open {
		for x := range m.open[y] {
			if m.open[y][x] {
				n++
			}
		}
	}
	return n
}
