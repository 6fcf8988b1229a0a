package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/util"
)

// Archive keeps the reports of finished games.
type Archive struct {
	db     *Database
	logger zerolog.Logger
}

// PlayerTotal aggregates a player name over all archived games.
type PlayerTotal struct {
	Name   string `json:"name"`
	Games  int    `json:"games"`
	Frags  int    `json:"frags"`
	Deaths int    `json:"deaths"`
	Flags  int    `json:"flags"`
}

// NewArchive opens the archive at path and migrates its schema.
func NewArchive(path string) (*Archive, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}
	a := &Archive{db: database, logger: util.ComponentLogger("archive")}
	if err := a.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			map TEXT NOT NULL,
			mode TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			started INTEGER NOT NULL,
			finished INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS game_players (
			game_id TEXT NOT NULL,
			cn INTEGER NOT NULL,
			name TEXT NOT NULL,
			team TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			frags INTEGER NOT NULL DEFAULT 0,
			deaths INTEGER NOT NULL DEFAULT 0,
			teamkills INTEGER NOT NULL DEFAULT 0,
			flags INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (game_id, cn),
			FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_games_finished ON games(finished);
		CREATE INDEX IF NOT EXISTS idx_game_players_name ON game_players(name);
	`
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	a.logger.Debug().Msg("archive schema migrated")
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error { return a.db.Close() }

// RecordGame stores a finished game. Recording the same game id twice
// replaces the earlier rows.
func (a *Archive) RecordGame(ctx context.Context, g events.GameReport) error {
	if g.GameID == "" {
		return fmt.Errorf("game report without id")
	}
	return a.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM games WHERE id = ?", g.GameID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO games (id, map, mode, reason, started, finished) VALUES (?, ?, ?, ?, ?, ?)",
			g.GameID, g.Map, g.Mode, g.Reason, g.Started.UnixMilli(), g.Finished.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert game: %w", err)
		}
		for _, p := range g.Players {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO game_players (game_id, cn, name, team, host, role, frags, deaths, teamkills, flags)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				g.GameID, p.CN, p.Name, p.Team, p.Host, p.Role, p.Frags, p.Deaths, p.TeamKills, p.FlagScore)
			if err != nil {
				return fmt.Errorf("failed to insert player %s: %w", p.Name, err)
			}
		}
		return nil
	})
}

// RecentGames returns up to limit games, newest first, with their players.
func (a *Archive) RecentGames(ctx context.Context, limit int) ([]events.GameReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx,
		"SELECT id, map, mode, reason, started, finished FROM games ORDER BY finished DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	var games []events.GameReport
	index := make(map[string]int)
	for rows.Next() {
		var g events.GameReport
		var started, finished int64
		if err := rows.Scan(&g.GameID, &g.Map, &g.Mode, &g.Reason, &started, &finished); err != nil {
			rows.Close()
			return nil, err
		}
		g.Started, g.Finished = time.UnixMilli(started).UTC(), time.UnixMilli(finished).UTC()
		index[g.GameID] = len(games)
		games = append(games, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range games {
		players, err := a.players(ctx, games[i].GameID)
		if err != nil {
			return nil, err
		}
		games[i].Players = players
	}
	return games, nil
}

func (a *Archive) players(ctx context.Context, gameID string) ([]events.PlayerReport, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT cn, name, team, host, role, frags, deaths, teamkills, flags
		 FROM game_players WHERE game_id = ? ORDER BY flags DESC, frags DESC, cn`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var out []events.PlayerReport
	for rows.Next() {
		var p events.PlayerReport
		if err := rows.Scan(&p.CN, &p.Name, &p.Team, &p.Host, &p.Role, &p.Frags, &p.Deaths, &p.TeamKills, &p.FlagScore); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TopPlayers ranks player names by total frags.
func (a *Archive) TopPlayers(ctx context.Context, limit int) ([]PlayerTotal, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT name, COUNT(*), SUM(frags), SUM(deaths), SUM(flags)
		 FROM game_players GROUP BY name ORDER BY SUM(frags) DESC, name LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	var out []PlayerTotal
	for rows.Next() {
		var t PlayerTotal
		if err := rows.Scan(&t.Name, &t.Games, &t.Frags, &t.Deaths, &t.Flags); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Prune deletes games finished before cutoff and returns how many went.
func (a *Archive) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := a.db.Transaction(ctx, func(tx *sql.Tx) error {
		ms := cutoff.UnixMilli()
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM game_players WHERE game_id IN (SELECT id FROM games WHERE finished < ?)", ms); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM games WHERE finished < ?", ms)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	if n > 0 {
		a.logger.Info().Int64("games", n).Time("before", cutoff).Msg("archive pruned")
	}
	return n, nil
}

// Attach records every finished game published on bus.
func (a *Archive) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventGameFinished, "archive", func(ctx context.Context, e events.Event) error {
		report, ok := e.Payload.(events.GameReport)
		if !ok {
			return nil
		}
		if err := a.RecordGame(ctx, report); err != nil {
			return fmt.Errorf("archive game %s: %w", report.GameID, err)
		}
		a.logger.Debug().Str("game", report.GameID).Int("players", len(report.Players)).Msg("game archived")
		return nil
	})
}
