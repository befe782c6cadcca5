package client_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/camcookie/maze/internal/client"
	"github.com/camcookie/maze/internal/config"
	"github.com/camcookie/maze/internal/frontend/ws"
	"github.com/camcookie/maze/internal/game/maze"
	"github.com/camcookie/maze/internal/game/protocol"
	"github.com/camcookie/maze/internal/game/rng"
	"github.com/camcookie/maze/internal/game/room"
)

const gridSize = 5

func startServer(t *testing.T) string {
	t.Helper()
	gameCfg := config.GameConfig{
		GridSize:     gridSize,
		CodeLength:   4,
		MaxLevelCap:  25,
		OutboxBuffer: 64,
	}
	reg := room.NewRegistry(rng.NewSeededSource(1), gameCfg.CodeLength, gameCfg.OutboxBuffer)
	handler := protocol.NewHandler(gameCfg, reg, rng.NewSeededSource(2), nil, zaptest.NewLogger(t))
	acc := ws.NewAcceptor(config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ShutdownTimeout: 2 * time.Second,
	}, handler, zaptest.NewLogger(t))

	go func() {
		_ = acc.ListenAndServe()
	}()
	t.Cleanup(acc.Stop)

	require.Eventually(t, func() bool {
		return acc.IsRunning() && acc.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond, "acceptor did not start")

	return fmt.Sprintf("ws://%s/ws", acc.Addr())
}

func dialSession(t *testing.T, url string) *client.Session {
	t.Helper()
	s, err := client.Dial(context.Background(), url, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func exitCell() maze.Cell {
	return maze.Cell{X: gridSize - 1, Y: gridSize - 1}
}

func TestSession_CreateMirrorsRoom(t *testing.T) {
	url := startServer(t)
	s := dialSession(t, url)

	require.NoError(t, s.RequestCreate("Ari", "#ff0000"))

	require.Eventually(t, func() bool { return s.Code() != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, s.Code(), 4)
	assert.NotEmpty(t, s.You())
	assert.Equal(t, s.You(), s.HostID())
	assert.Equal(t, room.StateLobby, s.State())

	players := s.Players()
	require.Len(t, players, 1)
	assert.Equal(t, "Ari", players[0].Name)
	assert.Equal(t, "#ff0000", players[0].Color)
}

func TestSession_JoinError(t *testing.T) {
	url := startServer(t)
	s := dialSession(t, url)

	require.NoError(t, s.RequestJoin("ZZZZ", "Beni", ""))

	require.Eventually(t, func() bool { return s.LastError() != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "room not found", s.LastError())
	assert.Empty(t, s.Code())
}

func TestSession_FullGame(t *testing.T) {
	url := startServer(t)
	ari := dialSession(t, url)
	beni := dialSession(t, url)

	require.NoError(t, ari.RequestCreate("Ari", ""))
	require.Eventually(t, func() bool { return ari.Code() != "" }, 2*time.Second, 10*time.Millisecond)
	code := ari.Code()

	require.NoError(t, beni.RequestJoin(code, "Beni", ""))
	require.Eventually(t, func() bool {
		return len(ari.Players()) == 2 && len(beni.Players()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ari.RequestStart(2))
	require.Eventually(t, func() bool {
		return ari.State() == room.StateRunning && beni.State() == room.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, ari.MaxLevels())
	assert.Equal(t, 0, ari.Level())
	assert.NotEmpty(t, ari.Layout())

	// Ari finishes level one.
	require.NoError(t, ari.RequestMove(exitCell()))
	require.Eventually(t, func() bool {
		return ari.Level() == 1 && beni.Level() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Beni finishes the final level; both mirrors settle on the standings.
	require.NoError(t, beni.RequestMove(exitCell()))
	require.Eventually(t, func() bool {
		return ari.State() == room.StateFinished && beni.State() == room.StateFinished
	}, 2*time.Second, 10*time.Millisecond)

	want := []room.LeaderboardEntry{{Name: "Ari", Score: 1}, {Name: "Beni", Score: 1}}
	assert.Equal(t, want, ari.Leaderboard())
	assert.Equal(t, want, beni.Leaderboard())
	assert.Greater(t, ari.Version(), uint64(0))
}

func TestSession_MoveStep(t *testing.T) {
	url := startServer(t)
	ari := dialSession(t, url)
	beni := dialSession(t, url)

	require.NoError(t, ari.RequestCreate("Ari", ""))
	require.Eventually(t, func() bool { return ari.Code() != "" }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, beni.RequestJoin(ari.Code(), "Beni", ""))
	require.Eventually(t, func() bool { return len(ari.Players()) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ari.RequestStart(1))
	require.Eventually(t, func() bool {
		return ari.State() == room.StateRunning && beni.State() == room.StateRunning
	}, 2*time.Second, 10*time.Millisecond)

	// The carve always opens at least one neighbor of the origin.
	lvl := maze.FromWalls(gridSize, ari.Layout())
	dir := client.Down
	target := maze.Cell{X: 0, Y: 1}
	if lvl.IsWall(0, 1) {
		dir = client.Right
		target = maze.Cell{X: 1, Y: 0}
	}

	require.NoError(t, ari.RequestMoveStep(dir))

	require.Eventually(t, func() bool {
		for _, p := range beni.Players() {
			if p.ID == ari.You() {
				return p.Pos == target
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "accepted step should reach the other mirror")
}

func TestSession_HostMigrationMirrored(t *testing.T) {
	url := startServer(t)
	ari := dialSession(t, url)
	beni := dialSession(t, url)

	require.NoError(t, ari.RequestCreate("Ari", ""))
	require.Eventually(t, func() bool { return ari.Code() != "" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, beni.RequestJoin(ari.Code(), "Beni", ""))
	require.Eventually(t, func() bool { return len(beni.Players()) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ari.Close())

	require.Eventually(t, func() bool {
		return beni.HostID() == beni.You() && len(beni.Players()) == 1
	}, 2*time.Second, 10*time.Millisecond, "host role should migrate to the remaining player")
}

func TestSession_KickNotifiesTarget(t *testing.T) {
	url := startServer(t)
	ari := dialSession(t, url)
	beni := dialSession(t, url)

	require.NoError(t, ari.RequestCreate("Ari", ""))
	require.Eventually(t, func() bool { return ari.Code() != "" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, beni.RequestJoin(ari.Code(), "Beni", ""))
	require.Eventually(t, func() bool { return len(ari.Players()) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NotEmpty(t, beni.You())
	require.NoError(t, ari.RequestKick(beni.You()))
	require.Eventually(t, func() bool { return beni.LastError() != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "You were kicked", beni.LastError())

	require.Eventually(t, func() bool { return len(ari.Players()) == 1 }, 2*time.Second, 10*time.Millisecond)
}
