// Package main provides the maze game server. It hosts rooms over
// websockets and optionally archives finished runs to PostgreSQL.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/camcookie/maze/internal/config"
	"github.com/camcookie/maze/internal/frontend/ws"
	"github.com/camcookie/maze/internal/game/protocol"
	"github.com/camcookie/maze/internal/game/rng"
	"github.com/camcookie/maze/internal/game/room"
	"github.com/camcookie/maze/internal/observability"
	"github.com/camcookie/maze/internal/server"
	"github.com/camcookie/maze/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting maze server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("grid_size", cfg.Game.GridSize),
		zap.Bool("archive", cfg.Database.Enabled),
	)

	ctx := context.Background()
	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	var archiver protocol.Archiver
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		archiver = postgres.NewRunRepository(pool.DB())

		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			},
			StopFn: func() {
				pool.Close()
			},
		})
	}

	registry := room.NewRegistry(rng.NewCryptoSource(), cfg.Game.CodeLength, cfg.Game.OutboxBuffer)
	handler := protocol.NewHandler(cfg.Game, registry, rng.NewCryptoSource(), archiver, logger)
	acceptor := ws.NewAcceptor(cfg.Server, handler, logger)

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: func() error {
			return acceptor.ListenAndServe()
		},
		StopFn: func() {
			acceptor.Stop()
		},
	})

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
