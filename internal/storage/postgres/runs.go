package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/camcookie/maze/internal/game/protocol"
	"github.com/camcookie/maze/internal/game/room"
)

// Run is an archived finished run.
type Run struct {
	ID         int64
	Code       string
	Levels     int
	FinishedAt time.Time
	CreatedAt  time.Time
}

// ErrRunNotFound is returned when a run lookup yields no results.
var ErrRunNotFound = errors.New("run not found")

// RunRepository archives finished runs and their leaderboards.
type RunRepository struct {
	db *pgxpool.Pool
}

// NewRunRepository creates a RunRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun inserts the run and its leaderboard rows in one transaction.
//
// Postcondition: Either the run row and every leaderboard row exist, or
// nothing was written.
func (r *RunRepository) SaveRun(ctx context.Context, run protocol.FinishedRun) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var runID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO runs (code, levels, finished_at)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			run.Code, run.Levels, run.FinishedAt,
		).Scan(&runID)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		for rank, entry := range run.Leaderboard {
			_, err := tx.Exec(ctx,
				`INSERT INTO run_players (run_id, rank, name, score)
				 VALUES ($1, $2, $3, $4)`,
				runID, rank+1, entry.Name, entry.Score,
			)
			if err != nil {
				return fmt.Errorf("inserting run player %q: %w", entry.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("archiving run %s: %w", run.Code, err)
	}
	return nil
}

// GetRun retrieves an archived run by ID.
//
// Postcondition: Returns the Run or ErrRunNotFound.
func (r *RunRepository) GetRun(ctx context.Context, id int64) (Run, error) {
	var run Run
	err := r.db.QueryRow(ctx,
		`SELECT id, code, levels, finished_at, created_at
		 FROM runs WHERE id = $1`,
		id,
	).Scan(&run.ID, &run.Code, &run.Levels, &run.FinishedAt, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// Leaderboard retrieves the archived leaderboard for a run, in rank order.
//
// Postcondition: Returns the entries or ErrRunNotFound when the run does not
// exist.
func (r *RunRepository) Leaderboard(ctx context.Context, runID int64) ([]room.LeaderboardEntry, error) {
	if _, err := r.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT name, score FROM run_players
		 WHERE run_id = $1 ORDER BY rank`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying run players: %w", err)
	}
	defer rows.Close()

	var board []room.LeaderboardEntry
	for rows.Next() {
		var entry room.LeaderboardEntry
		if err := rows.Scan(&entry.Name, &entry.Score); err != nil {
			return nil, fmt.Errorf("scanning run player: %w", err)
		}
		board = append(board, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading run players: %w", err)
	}
	return board, nil
}

// RecentRuns lists the most recently finished runs, newest first.
func (r *RunRepository) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, code, levels, finished_at, created_at
		 FROM runs ORDER BY finished_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Code, &run.Levels, &run.FinishedAt, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	return runs, nil
}
