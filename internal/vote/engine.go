package vote

import (
	"errors"
	"time"

	"github.com/gasbugs/AC/internal/protocol"
)

// Ballot is one connection's vote on the live proposal.
type Ballot int

const (
	Abstain Ballot = iota
	Yes
	No
)

func (b Ballot) String() string {
	switch b {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// Result is the resolution state of a proposal.
type Result int

const (
	Pending Result = iota
	Accepted
	Rejected
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Error is the closed set of refusals sent back to a caller or voter.
type Error int

const (
	ErrDisabled Error = iota
	ErrCurrent
	ErrMultiple
	ErrMax
	ErrArea
	ErrPermission
	ErrInvalid
)

var errorStrings = map[Error]string{
	ErrDisabled:   "voting is currently disabled",
	ErrCurrent:    "there is already a vote pending",
	ErrMultiple:   "you already voted",
	ErrMax:        "you can only call one vote per minute",
	ErrArea:       "this vote is not allowed in the current game mode",
	ErrPermission: "you do not have the permission to call this vote",
	ErrInvalid:    "invalid vote",
}

func (e Error) Error() string {
	if s, ok := errorStrings[e]; ok {
		return s
	}
	return "unknown vote error"
}

// ErrNoProposal is returned when a ballot arrives with no live proposal.
var ErrNoProposal = errors.New("no vote pending")

// Voter is the view of a connection the engine needs.
type Voter struct {
	ID          int
	Role        protocol.Role
	ConnectedAt time.Time
}

// Config holds the engine tunables.
type Config struct {
	Lifetime     time.Duration
	CallInterval time.Duration
	Quorum       float64
	Disabled     map[Kind]bool
}

// DefaultConfig returns the standard vote rules.
func DefaultConfig() Config {
	return Config{
		Lifetime:     40 * time.Second,
		CallInterval: 60 * time.Second,
		Quorum:       0.51,
		Disabled:     map[Kind]bool{},
	}
}

// Proposal is a pending administrative action.
type Proposal struct {
	Owner    int
	Action   Action
	CalledAt time.Time
	ballots  map[int]Ballot
	result   Result
}

// Result returns the resolution state.
func (p *Proposal) Result() Result { return p.result }

// Ballot returns the ballot cast by id.
func (p *Proposal) Ballot(id int) Ballot { return p.ballots[id] }

// Tally counts the ballots of the eligible voters.
type Tally struct {
	Yes, No, Abstain int
	AdminYes         bool
	AdminNo          bool
	OwnerAdmin       bool
}

// Total returns the number of eligible voters.
func (t Tally) Total() int { return t.Yes + t.No + t.Abstain }

// Engine holds at most one live proposal.
type Engine struct {
	cfg      Config
	current  *Proposal
	lastCall map[int]time.Time

	// OnResolve is called once per proposal, before an accepted action runs.
	OnResolve func(p *Proposal, r Result)
}

// NewEngine creates an engine with cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.Disabled == nil {
		cfg.Disabled = map[Kind]bool{}
	}
	return &Engine{cfg: cfg, lastCall: make(map[int]time.Time)}
}

// Current returns the live proposal, or nil.
func (e *Engine) Current() *Proposal {
	return e.current
}

// SetDisabled replaces the set of kinds non-admins may not call.
func (e *Engine) SetDisabled(kinds map[Kind]bool) {
	e.cfg.Disabled = kinds
}

// Call admits a new proposal from caller. mode is the current game mode and
// clients the number of connected clients. Checks run in a fixed order and
// the first failing one is returned.
func (e *Engine) Call(caller Voter, a Action, mode, clients int, now time.Time) (*Proposal, error) {
	last, called := e.lastCall[caller.ID]
	switch {
	case !a.valid():
		return nil, ErrInvalid
	case a.Role > caller.Role:
		return nil, ErrPermission
	case !a.Modes.Has(mode):
		return nil, ErrArea
	case e.current != nil && e.current.result == Pending:
		return nil, ErrCurrent
	case caller.Role == protocol.RoleDefault && e.cfg.Disabled[a.Kind]:
		return nil, ErrDisabled
	case called && now.Sub(last) < e.cfg.CallInterval && caller.Role != protocol.RoleAdmin && clients > 1:
		return nil, ErrMax
	}

	p := &Proposal{
		Owner:    caller.ID,
		Action:   a,
		CalledAt: now,
		ballots:  make(map[int]Ballot),
	}
	e.current = p
	e.lastCall[caller.ID] = now
	return p, nil
}

// Cast records voter's ballot on the live proposal and re-evaluates it
// against electorate.
func (e *Engine) Cast(voter Voter, b Ballot, electorate []Voter, now time.Time) error {
	p := e.current
	if p == nil || p.result != Pending {
		return ErrNoProposal
	}
	if b != Yes && b != No {
		return ErrInvalid
	}
	if !voter.ConnectedAt.Before(p.CalledAt) {
		return ErrPermission
	}
	if p.ballots[voter.ID] != Abstain {
		return ErrMultiple
	}
	p.ballots[voter.ID] = b
	e.Evaluate(electorate, now, false)
	return nil
}

// Count tallies the live proposal over electorate. Only voters connected
// before the proposal was called are eligible.
func (e *Engine) Count(electorate []Voter) Tally {
	var t Tally
	p := e.current
	if p == nil {
		return t
	}
	for _, v := range electorate {
		if v.ID == p.Owner && v.Role == protocol.RoleAdmin {
			t.OwnerAdmin = true
		}
		if !v.ConnectedAt.Before(p.CalledAt) {
			continue
		}
		b := p.ballots[v.ID]
		switch b {
		case Yes:
			t.Yes++
		case No:
			t.No++
		default:
			t.Abstain++
		}
		if v.Role == protocol.RoleAdmin {
			t.AdminYes = t.AdminYes || b == Yes
			t.AdminNo = t.AdminNo || b == No
		}
	}
	return t
}

// Evaluate resolves the live proposal if a quorum rule is met. With force
// set, a proposal that is not accepted is rejected.
func (e *Engine) Evaluate(electorate []Voter, now time.Time, force bool) Result {
	p := e.current
	if p == nil || p.result != Pending {
		return Pending
	}
	if !p.Action.valid() {
		e.end(Rejected)
		return Rejected
	}

	t := e.Count(electorate)
	total := float64(t.Total())
	share := func(n int) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) / total
	}

	switch {
	case t.AdminNo:
		e.end(Rejected)
	case t.AdminYes || t.OwnerAdmin || share(t.Yes) > e.cfg.Quorum:
		e.end(Accepted)
	case force || share(t.No) > e.cfg.Quorum || t.No >= t.Yes+t.Abstain:
		e.end(Rejected)
	default:
		return Pending
	}
	return p.result
}

// Expire force-resolves the live proposal once its lifetime has passed.
func (e *Engine) Expire(electorate []Voter, now time.Time) Result {
	p := e.current
	if p == nil || p.result != Pending {
		return Pending
	}
	if now.Before(p.CalledAt.Add(e.cfg.Lifetime)) {
		return Pending
	}
	return e.Evaluate(electorate, now, true)
}

// Alive reports whether the live proposal is still within its lifetime.
func (e *Engine) Alive(now time.Time) bool {
	p := e.current
	return p != nil && p.result == Pending && now.Before(p.CalledAt.Add(e.cfg.Lifetime))
}

func (e *Engine) end(r Result) {
	p := e.current
	p.result = r
	p.ballots = make(map[int]Ballot)
	e.current = nil
	if r == Accepted {
		e.ResetTimers()
	}
	if e.OnResolve != nil {
		e.OnResolve(p, r)
	}
	if r == Accepted && p.Action.Execute != nil {
		p.Action.Execute()
	}
}

// Forget drops everything known about a departed connection.
func (e *Engine) Forget(id int) {
	delete(e.lastCall, id)
	if e.current != nil {
		delete(e.current.ballots, id)
	}
}

// ResetTimers clears every caller's rate-limit timer.
func (e *Engine) ResetTimers() {
	for id := range e.lastCall {
		delete(e.lastCall, id)
	}
}
