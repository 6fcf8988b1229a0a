// Package balance picks teams: where a new player goes, how to shuffle
// everybody, and which few players to move when the teams drift apart.
// It only reads player state; callers apply the returned moves.
package balance

import (
	"math/rand"
	"sort"
	"time"
)

// Player is the balancer's view of one connected player.
type Player struct {
	ID        int
	Team      int
	Frags     int
	Deaths    int
	FlagScore int
	// Pinned players are never moved, e.g. flag carriers.
	Pinned bool
	// LastMoved is the game time of the last balancer move, zero for never.
	LastMoved time.Duration
	// Forced reports an unanswered team change.
	Forced bool
}

// Move assigns a player to a team.
type Move struct {
	ID   int
	Team int
}

// Score rates a player's skill from frags per death plus a flag bonus that
// flattens after two captures.
func Score(p Player, flagMode bool) int {
	fp12, fp3 := 33, 15
	if flagMode {
		fp12, fp3 = 55, 25
	}
	deaths := p.Deaths
	if deaths == 0 {
		deaths = 1
	}
	s := p.Frags * 100 / deaths
	if p.FlagScore < 3 {
		return s + fp12*p.FlagScore
	}
	return s + 2*fp12 + fp3*(p.FlagScore-2)
}

func onTeam(team int) bool { return team == 0 || team == 1 }

// FreeTeam returns the team a joining player should get: the smaller team,
// or on equal sizes the weaker one once the server has a meaningful score.
// The player with id exclude is ignored.
func FreeTeam(players []Player, exclude int, flagMode bool, rnd *rand.Rand) int {
	var size, score [2]int
	sum := 0
	for _, p := range players {
		s := Score(p, flagMode)
		sum += s
		if p.ID == exclude || !onTeam(p.Team) {
			continue
		}
		size[p.Team]++
		score[p.Team] += s
	}
	if size[0] == size[1] {
		if sum > 200 {
			if score[0] < score[1] {
				return 0
			}
			return 1
		}
		return rnd.Intn(2)
	}
	if size[0] < size[1] {
		return 0
	}
	return 1
}

// RandomShufflePeriod is how long into a game shuffles ignore skill.
const RandomShufflePeriod = 2 * time.Minute

// Shuffle reassigns every player. Early in a game teams are random but even;
// later players are dealt alternately in skill order with some noise.
func Shuffle(players []Player, gameTime time.Duration, flagMode bool, rnd *rand.Rand) []Move {
	n := len(players)
	if n == 0 {
		return nil
	}
	sum := 0
	scores := make(map[int]int, n)
	for _, p := range players {
		s := Score(p, flagMode)
		scores[p.ID] = s
		sum += s
	}

	moves := make([]Move, 0, n)
	if gameTime < RandomShufflePeriod {
		var size [2]int
		bits := sum
		for _, p := range players {
			bits += rnd.Intn(1000)
			team := bits & 1
			if size[team] >= n/2 {
				team = 1 - team
			}
			moves = append(moves, Move{ID: p.ID, Team: team})
			size[team]++
			bits >>= 1
		}
		return moves
	}

	noise := sum / (4*n + 2)
	order := make([]Player, n)
	copy(order, players)
	for _, p := range order {
		if noise > 0 {
			scores[p.ID] += rnd.Intn(noise)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i].ID] > scores[order[j].ID] })
	team := rnd.Intn(2)
	for _, p := range order {
		moves = append(moves, Move{ID: p.ID, Team: team})
		team = 1 - team
	}
	return moves
}

// Refiller evens out team sizes with as few moves as possible. It remembers
// when the teams were last even.
type Refiller struct {
	lastEven time.Duration
}

// Refill returns the moves that bring the team sizes within one of each
// other. Unless now is set, small differences are tolerated for a while
// after the teams were last even. Each move narrows the size gap by two.
func (r *Refiller) Refill(players []Player, gameTime time.Duration, now, flagMode bool, rnd *rand.Rand) []Move {
	var size, score, movable [2]int
	scores := make(map[int]int, len(players))
	for _, p := range players {
		if !onTeam(p.Team) {
			continue
		}
		s := Score(p, flagMode)
		scores[p.ID] = s
		size[p.Team]++
		score[p.Team] += s
		if !p.Pinned {
			movable[p.Team]++
			if p.Forced {
				return nil
			}
		}
	}

	big := 0
	if size[1] > size[0] {
		big = 1
	}
	all := size[0] + size[1]
	diff := size[big] - size[1-big]
	diffScore := score[big] - score[1-big]
	if r.lastEven > gameTime {
		r.lastEven = 0
	}

	var moves []Move
	overdue := gameTime-r.lastEven > 8*time.Second+time.Duration(all)*time.Second
	if diff > 1 && (now || overdue || diff > 2+all/10) {
		moved := make(map[int]bool)
		for diff > 1 && movable[big] > 0 {
			target := diffScore / (diff &^ 1)
			pick, bestFit := -1, 1000000000
			for _, p := range players {
				if p.Team != big || p.Pinned || moved[p.ID] {
					continue
				}
				fit := target - scores[p.ID]
				if fit < 0 {
					fit = -(fit * 15) / 10
				}
				if p.LastMoved > 0 {
					delay := 1000 - int((gameTime-p.LastMoved).Milliseconds())/(5*60)
					if delay > 0 {
						fit += fit * delay / 600
					}
				}
				if fit < bestFit+fit*rnd.Intn(100)/400 {
					bestFit = fit
					pick = p.ID
				}
			}
			if pick < 0 {
				break
			}
			moves = append(moves, Move{ID: pick, Team: 1 - big})
			moved[pick] = true
			diff -= 2
			diffScore -= 2 * scores[pick]
			movable[big]--
		}
	}
	if diff < 2 {
		r.lastEven = gameTime
	}
	return moves
}
