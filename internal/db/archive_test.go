package db

import (
	"context"
	"testing"
	"time"

	"github.com/gasbugs/AC/internal/events"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := NewArchive(":memory:")
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func report(id string, finished time.Time, players ...events.PlayerReport) events.GameReport {
	return events.GameReport{
		GameID:   id,
		Map:      "ac_depot",
		Mode:     "ctf",
		Started:  finished.Add(-15 * time.Minute),
		Finished: finished,
		Reason:   "finished",
		Players:  players,
	}
}

func TestRecordAndList(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := a.RecordGame(ctx, report("g1", base,
		events.PlayerReport{CN: 0, Name: "alice", Team: "CLA", Frags: 10, Deaths: 2, FlagScore: 1},
		events.PlayerReport{CN: 1, Name: "bob", Team: "RVSF", Frags: 3, Deaths: 9},
	)); err != nil {
		t.Fatalf("RecordGame: %v", err)
	}
	if err := a.RecordGame(ctx, report("g2", base.Add(time.Hour),
		events.PlayerReport{CN: 0, Name: "bob", Frags: 20},
	)); err != nil {
		t.Fatalf("RecordGame: %v", err)
	}

	games, err := a.RecentGames(ctx, 10)
	if err != nil {
		t.Fatalf("RecentGames: %v", err)
	}
	if len(games) != 2 || games[0].GameID != "g2" {
		t.Fatalf("games = %+v", games)
	}
	g1 := games[1]
	if len(g1.Players) != 2 || g1.Players[0].Name != "alice" || g1.Players[0].FlagScore != 1 {
		t.Errorf("g1 players = %+v", g1.Players)
	}
	if !g1.Finished.Equal(base) {
		t.Errorf("finished = %v", g1.Finished)
	}

	top, err := a.TopPlayers(ctx, 5)
	if err != nil {
		t.Fatalf("TopPlayers: %v", err)
	}
	if len(top) != 2 || top[0].Name != "bob" || top[0].Frags != 23 || top[0].Games != 2 {
		t.Errorf("top = %+v", top)
	}
}

func TestRecordGameReplaces(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	a.RecordGame(ctx, report("g1", now, events.PlayerReport{CN: 0, Name: "alice"}, events.PlayerReport{CN: 1, Name: "bob"}))
	if err := a.RecordGame(ctx, report("g1", now, events.PlayerReport{CN: 0, Name: "alice"})); err != nil {
		t.Fatalf("second RecordGame: %v", err)
	}
	games, _ := a.RecentGames(ctx, 0)
	if len(games) != 1 || len(games[0].Players) != 1 {
		t.Fatalf("games = %+v", games)
	}

	if err := a.RecordGame(ctx, events.GameReport{}); err == nil {
		t.Error("report without id accepted")
	}
}

func TestPrune(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	a.RecordGame(ctx, report("old", now.Add(-100*24*time.Hour), events.PlayerReport{Name: "alice"}))
	a.RecordGame(ctx, report("new", now))

	n, err := a.Prune(ctx, now.Add(-90*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	games, _ := a.RecentGames(ctx, 10)
	if len(games) != 1 || games[0].GameID != "new" {
		t.Errorf("games after prune = %+v", games)
	}
	if top, _ := a.TopPlayers(ctx, 10); len(top) != 0 {
		t.Errorf("players of pruned games kept: %+v", top)
	}
}

func TestAttach(t *testing.T) {
	a := newTestArchive(t)
	bus := events.NewEventBus()
	defer bus.Stop()
	a.Attach(bus)

	err := bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventGameFinished,
		Payload: report("g1", time.Now()),
	})
	if err != nil {
		t.Fatalf("EmitSync: %v", err)
	}
	if games, _ := a.RecentGames(context.Background(), 1); len(games) != 1 {
		t.Fatal("finished game not archived")
	}
}
