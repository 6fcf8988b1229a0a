package balance

import (
	"math/rand"
	"testing"
	"time"
)

func TestScore(t *testing.T) {
	tests := []struct {
		p        Player
		flagMode bool
		want     int
	}{
		{Player{Frags: 10, Deaths: 0}, false, 1000},
		{Player{Frags: 10, Deaths: 5}, false, 200},
		{Player{Frags: 0, Deaths: 3, FlagScore: 2}, false, 66},
		{Player{Frags: 0, Deaths: 3, FlagScore: 2}, true, 110},
		{Player{FlagScore: 4}, true, 110 + 50},
		{Player{FlagScore: 4}, false, 66 + 30},
	}
	for _, tt := range tests {
		if got := Score(tt.p, tt.flagMode); got != tt.want {
			t.Errorf("Score(%+v, %v) = %d, want %d", tt.p, tt.flagMode, got, tt.want)
		}
	}
}

func TestFreeTeamPrefersSmallerTeam(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	players := []Player{{ID: 0, Team: 0}, {ID: 1, Team: 0}, {ID: 2, Team: 1}}
	if got := FreeTeam(players, -1, false, rnd); got != 1 {
		t.Fatalf("FreeTeam = %d, want 1", got)
	}
	// excluding a player of the bigger team evens them out
	players = append(players, Player{ID: 3, Team: 1, Frags: 10})
	if got := FreeTeam(players, 3, false, rnd); got != 1 {
		t.Fatalf("FreeTeam excluding 3 = %d, want 1", got)
	}
}

func TestFreeTeamEqualSizesPicksWeaker(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	players := []Player{{ID: 0, Team: 0, Frags: 5}, {ID: 1, Team: 1, Frags: 1}}
	if got := FreeTeam(players, -1, false, rnd); got != 1 {
		t.Fatalf("FreeTeam = %d, want the weaker team 1", got)
	}
}

func TestShuffleRandomPhaseIsEven(t *testing.T) {
	rnd := rand.New(rand.NewSource(9))
	for n := 1; n <= 9; n++ {
		players := make([]Player, n)
		for i := range players {
			players[i] = Player{ID: i, Team: i % 2}
		}
		moves := Shuffle(players, time.Minute, false, rnd)
		if len(moves) != n {
			t.Fatalf("n=%d: moves = %d", n, len(moves))
		}
		var size [2]int
		for _, m := range moves {
			size[m.Team]++
		}
		if d := size[0] - size[1]; d > 1 || d < -1 {
			t.Fatalf("n=%d: sizes %v", n, size)
		}
	}
}

func TestShuffleSkillPhaseAlternates(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	players := []Player{
		{ID: 0, Frags: 1, Deaths: 10},
		{ID: 1, Frags: 100, Deaths: 1},
		{ID: 2, Frags: 50, Deaths: 1},
		{ID: 3, Frags: 2, Deaths: 10},
	}
	moves := Shuffle(players, 5*time.Minute, false, rnd)
	team := map[int]int{}
	for _, m := range moves {
		team[m.ID] = m.Team
	}
	if team[1] == team[2] {
		t.Fatalf("two best players on one team: %v", team)
	}
}

func TestRefillNarrowsGap(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	var players []Player
	for i := 0; i < 7; i++ {
		players = append(players, Player{ID: i, Team: 0, Frags: i})
	}
	players = append(players, Player{ID: 7, Team: 1})

	r := &Refiller{}
	moves := r.Refill(players, time.Minute, true, false, rnd)
	if len(moves) != 3 {
		t.Fatalf("moves = %+v, want 3", moves)
	}
	seen := map[int]bool{}
	for _, m := range moves {
		if m.Team != 1 || seen[m.ID] || m.ID == 7 {
			t.Fatalf("bad move %+v in %+v", m, moves)
		}
		seen[m.ID] = true
	}
}

func TestRefillLeavesPinnedAndWaitsForPendingForce(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	players := []Player{
		{ID: 0, Team: 0, Pinned: true},
		{ID: 1, Team: 0, Pinned: true},
		{ID: 2, Team: 0, Pinned: true},
	}
	r := &Refiller{}
	if moves := r.Refill(players, time.Minute, true, false, rnd); len(moves) != 0 {
		t.Fatalf("moved pinned players: %+v", moves)
	}

	players = append(players, Player{ID: 3, Team: 0, Forced: true})
	if moves := r.Refill(players, time.Minute, true, false, rnd); moves != nil {
		t.Fatalf("moves while a forced change is pending: %+v", moves)
	}
}

func TestRefillToleratesSmallGapForAWhile(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	players := []Player{
		{ID: 0, Team: 0}, {ID: 1, Team: 0}, {ID: 2, Team: 0},
		{ID: 3, Team: 1},
	}
	r := &Refiller{}
	// even at 60s
	r.Refill([]Player{players[0], players[3]}, 60*time.Second, false, false, rnd)
	if moves := r.Refill(players, 65*time.Second, false, false, rnd); len(moves) != 0 {
		t.Fatalf("moved too early: %+v", moves)
	}
	// 8s + 4 players later
	if moves := r.Refill(players, 73*time.Second, false, false, rnd); len(moves) != 1 {
		t.Fatalf("moves = %+v, want 1", moves)
	}
}
