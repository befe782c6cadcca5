package maze_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/camcookie/maze/internal/game/maze"
	"github.com/camcookie/maze/internal/game/rng"
)

// reachableFromOrigin floods the open cells from (0,0) and returns the
// number of cells reached.
func reachableFromOrigin(m *maze.Maze) int {
	type cell struct{ x, y int }
	seen := map[cell]bool{{0, 0}: true}
	queue := []cell{{0, 0}}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, d := range []cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			n := cell{c.x + d.x, c.y + d.y}
			if !seen[n] && m.InBounds(n.x, n.y) && !m.IsWall(n.x, n.y) {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(seen)
}

// TestGenerate_OriginAndExitOpen verifies the start and goal cells are
// always carved for the conventional grid.
func TestGenerate_OriginAndExitOpen(t *testing.T) {
	m := maze.Generate(maze.DefaultSize, rng.NewSeededSource(1))
	require.False(t, m.IsWall(0, 0), "origin must be open")
	exit := m.Exit()
	require.False(t, m.IsWall(exit.X, exit.Y), "exit must be open")
}

// TestGenerate_Connectivity verifies that for arbitrary odd grid sizes every
// open cell is reachable from the origin.
func TestGenerate_Connectivity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(0, 12).Draw(t, "halfSize")*2 + 1
		seed := rapid.Int64().Draw(t, "seed")

		m := maze.Generate(size, rng.NewSeededSource(seed))

		assert.Equal(t, m.OpenCount(), reachableFromOrigin(m),
			"every open cell must be reachable from the origin")
	})
}

// TestGenerate_NoOpenBlock verifies the perfect-maze property: no generated
// layout contains a 2x2 fully open block.
func TestGenerate_NoOpenBlock(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 12).Draw(t, "halfSize")*2 + 1
		seed := rapid.Int64().Draw(t, "seed")

		m := maze.Generate(size, rng.NewSeededSource(seed))

		for y := 0; y < size-1; y++ {
			for x := 0; x < size-1; x++ {
				open := !m.IsWall(x, y) && !m.IsWall(x+1, y) &&
					!m.IsWall(x, y+1) && !m.IsWall(x+1, y+1)
				if open {
					t.Fatalf("2x2 open block at (%d,%d)", x, y)
				}
			}
		}
	})
}

// TestGenerate_WallLattice verifies that for odd sizes every even-even cell
// is open: the two-step carve visits the whole odd-aligned lattice.
func TestGenerate_WallLattice(t *testing.T) {
	m := maze.Generate(maze.DefaultSize, rng.NewSeededSource(3))
	for y := 0; y < m.Size(); y += 2 {
		for x := 0; x < m.Size(); x += 2 {
			assert.False(t, m.IsWall(x, y), "lattice cell (%d,%d) must be open", x, y)
		}
	}
}

// TestGenerate_SizeOne is the degenerate single-cell grid.
func TestGenerate_SizeOne(t *testing.T) {
	m := maze.Generate(1, rng.NewSeededSource(9))
	assert.Equal(t, 1, m.OpenCount())
	assert.Equal(t, maze.Cell{X: 0, Y: 0}, m.Exit())
	assert.Empty(t, m.Walls())
}

// TestGenerate_PanicsOnInvalidSize verifies the size precondition.
func TestGenerate_PanicsOnInvalidSize(t *testing.T) {
	assert.Panics(t, func() { maze.Generate(0, rng.NewSeededSource(1)) })
}

// TestWalls_Roundtrip verifies the wire format: walls plus open cells cover
// the grid, and FromWalls reconstructs the same layout.
func TestWalls_Roundtrip(t *testing.T) {
	m := maze.Generate(maze.DefaultSize, rng.NewSeededSource(5))
	walls := m.Walls()
	assert.Equal(t, maze.DefaultSize*maze.DefaultSize, m.OpenCount()+len(walls))

	rebuilt := maze.FromWalls(m.Size(), walls)
	for y := 0; y < m.Size(); y++ {
		for x := 0; x < m.Size(); x++ {
			require.Equal(t, m.IsWall(x, y), rebuilt.IsWall(x, y),
				"cell (%d,%d) must survive the round trip", x, y)
		}
	}
}

// TestIsWall_OutOfBounds verifies off-grid coordinates read as walls.
func TestIsWall_OutOfBounds(t *testing.T) {
	m := maze.Generate(5, rng.NewSeededSource(2))
	assert.True(t, m.IsWall(-1, 0))
	assert.True(t, m.IsWall(0, -1))
	assert.True(t, m.IsWall(5, 0))
	assert.True(t, m.IsWall(0, 5))
}
