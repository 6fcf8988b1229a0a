package vote

import (
	"errors"
	"testing"
	"time"

	"github.com/gasbugs/AC/internal/protocol"
)

var base = time.Unix(5000, 0)

func voters(n int) []Voter {
	out := make([]Voter, n)
	for i := range out {
		out[i] = Voter{ID: i, ConnectedAt: base.Add(-time.Minute)}
	}
	return out
}

func countingAction(n *int) Action {
	return Action{Kind: KindKick, Desc: "kick", Modes: AllModes, Execute: func() { *n++ }}
}

func TestCallAdmissionOrder(t *testing.T) {
	e := NewEngine(DefaultConfig())
	caller := Voter{ID: 1}

	invalid := Action{Modes: AllModes, Valid: func() bool { return false }, Role: protocol.RoleAdmin}
	if _, err := e.Call(caller, invalid, 0, 2, base); err != ErrInvalid {
		t.Fatalf("invalid and unpermitted action: err = %v, want %v", err, ErrInvalid)
	}
	if _, err := e.Call(caller, Action{Modes: 0, Role: protocol.RoleAdmin}, 0, 2, base); err != ErrPermission {
		t.Fatalf("err = %v, want %v", err, ErrPermission)
	}
	if _, err := e.Call(caller, Action{Modes: Modes(5)}, 0, 2, base); err != ErrArea {
		t.Fatalf("err = %v, want %v", err, ErrArea)
	}
}

func TestCallRejectsWhileProposalLive(t *testing.T) {
	e := NewEngine(DefaultConfig())
	n := 0
	if _, err := e.Call(Voter{ID: 0}, countingAction(&n), 0, 4, base); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Call(Voter{ID: 1}, countingAction(&n), 0, 4, base); err != ErrCurrent {
		t.Fatalf("err = %v, want %v", err, ErrCurrent)
	}
}

func TestCallDisabledForNonAdmins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disabled = map[Kind]bool{KindKick: true}
	e := NewEngine(cfg)
	n := 0
	if _, err := e.Call(Voter{ID: 0}, countingAction(&n), 0, 4, base); err != ErrDisabled {
		t.Fatalf("err = %v, want %v", err, ErrDisabled)
	}
	if _, err := e.Call(Voter{ID: 0, Role: protocol.RoleAdmin}, countingAction(&n), 0, 4, base); err != nil {
		t.Fatalf("admin call: %v", err)
	}
}

func TestCallRateLimit(t *testing.T) {
	e := NewEngine(DefaultConfig())
	el := voters(3)
	n := 0
	if _, err := e.Call(el[0], countingAction(&n), 0, 3, base); err != nil {
		t.Fatal(err)
	}
	e.Evaluate(el, base, true)

	if _, err := e.Call(el[0], countingAction(&n), 0, 3, base.Add(10*time.Second)); err != ErrMax {
		t.Fatalf("err = %v, want %v", err, ErrMax)
	}
	// alone on the server the limit does not apply
	if _, err := e.Call(el[0], countingAction(&n), 0, 1, base.Add(10*time.Second)); err != nil {
		t.Fatalf("sole client: %v", err)
	}
	e.Evaluate(el, base.Add(10*time.Second), true)
	if _, err := e.Call(el[0], countingAction(&n), 0, 3, base.Add(71*time.Second)); err != nil {
		t.Fatalf("after interval: %v", err)
	}
}

func TestMajorityAcceptsAndExecutesOnce(t *testing.T) {
	e := NewEngine(DefaultConfig())
	el := voters(4)
	n := 0
	resolved := 0
	e.OnResolve = func(p *Proposal, r Result) { resolved++ }

	call := base
	if _, err := e.Call(el[0], countingAction(&n), 0, 4, call); err != nil {
		t.Fatal(err)
	}
	for _, v := range el[:3] {
		if err := e.Cast(v, Yes, el, call.Add(time.Second)); err != nil && !errors.Is(err, ErrNoProposal) {
			t.Fatalf("cast %d: %v", v.ID, err)
		}
	}
	if n != 1 || resolved != 1 {
		t.Fatalf("executed %d times, resolved %d times", n, resolved)
	}
	if err := e.Cast(el[3], Yes, el, call.Add(2*time.Second)); err != ErrNoProposal {
		t.Fatalf("ballot after resolution: err = %v", err)
	}
	e.Evaluate(el, call.Add(time.Minute), true)
	if n != 1 {
		t.Fatal("resolved proposal ran again")
	}
}

func TestHalfYesIsNotAMajority(t *testing.T) {
	e := NewEngine(DefaultConfig())
	el := voters(4)
	n := 0
	e.Call(el[0], countingAction(&n), 0, 4, base)
	e.Cast(el[0], Yes, el, base)
	e.Cast(el[1], Yes, el, base)
	if e.Current() == nil {
		t.Fatal("2 of 4 resolved the vote")
	}
	e.Cast(el[2], Yes, el, base)
	if e.Current() != nil || n != 1 {
		t.Fatal("3 of 4 did not pass")
	}
}

func TestNoAtLeastYesPlusAbstainRejects(t *testing.T) {
	e := NewEngine(DefaultConfig())
	el := voters(4)
	n := 0
	var got Result
	e.OnResolve = func(p *Proposal, r Result) { got = r }
	e.Call(el[0], countingAction(&n), 0, 4, base)
	e.Cast(el[1], No, el, base)
	if e.Current() == nil {
		t.Fatal("1 no of 4 resolved the vote")
	}
	e.Cast(el[2], No, el, base)
	if got != Rejected || n != 0 {
		t.Fatalf("result = %v, executed = %d", got, n)
	}
}

func TestAdminBallotDecides(t *testing.T) {
	el := voters(5)
	el[4].Role = protocol.RoleAdmin

	e := NewEngine(DefaultConfig())
	n := 0
	e.Call(el[0], countingAction(&n), 0, 5, base)
	for _, v := range el[:3] {
		e.Cast(v, Yes, el[:4], base)
	}
	if n != 1 {
		t.Fatal("setup: majority should pass without the admin")
	}

	e = NewEngine(DefaultConfig())
	n = 0
	e.Call(el[0], countingAction(&n), 0, 5, base)
	e.Cast(el[4], No, el, base)
	if n != 0 || e.Current() != nil {
		t.Fatal("admin no must reject")
	}

	e = NewEngine(DefaultConfig())
	e.Call(el[0], countingAction(&n), 0, 5, base)
	e.Cast(el[4], Yes, el, base)
	if n != 1 {
		t.Fatal("admin yes must accept")
	}
}

func TestAnyAdminNoRejects(t *testing.T) {
	el := voters(5)
	el[3].Role = protocol.RoleAdmin
	el[4].Role = protocol.RoleAdmin

	e := NewEngine(DefaultConfig())
	n := 0
	p, err := e.Call(el[0], countingAction(&n), 0, 5, base)
	if err != nil {
		t.Fatal(err)
	}
	// The abstaining admin is counted after the one who voted no.
	p.ballots[el[3].ID] = No
	tally := e.Count(el)
	if !tally.AdminNo || tally.AdminYes {
		t.Fatalf("tally = %+v", tally)
	}
	if r := e.Evaluate(el, base, false); r != Rejected || n != 0 {
		t.Fatalf("result = %v, executed = %d", r, n)
	}
}

func TestAdminCallerAcceptsOnEvaluate(t *testing.T) {
	el := voters(3)
	el[0].Role = protocol.RoleAdmin
	e := NewEngine(DefaultConfig())
	n := 0
	e.Call(el[0], countingAction(&n), 0, 3, base)
	if r := e.Evaluate(el, base, false); r != Accepted || n != 1 {
		t.Fatalf("result = %v, executed = %d", r, n)
	}
}

func TestLateJoinersCannotVote(t *testing.T) {
	el := voters(2)
	e := NewEngine(DefaultConfig())
	n := 0
	e.Call(el[0], countingAction(&n), 0, 3, base)
	late := Voter{ID: 7, ConnectedAt: base.Add(time.Second)}
	if err := e.Cast(late, Yes, append(el, late), base.Add(2*time.Second)); err != ErrPermission {
		t.Fatalf("err = %v, want %v", err, ErrPermission)
	}
	if tally := e.Count(append(el, late)); tally.Total() != 2 {
		t.Fatalf("eligible voters = %d, want 2", tally.Total())
	}
}

func TestDoubleBallotRejected(t *testing.T) {
	el := voters(4)
	e := NewEngine(DefaultConfig())
	n := 0
	e.Call(el[0], countingAction(&n), 0, 4, base)
	if err := e.Cast(el[1], Yes, el, base); err != nil {
		t.Fatal(err)
	}
	if err := e.Cast(el[1], No, el, base); err != ErrMultiple {
		t.Fatalf("err = %v, want %v", err, ErrMultiple)
	}
	if err := e.Cast(el[2], Abstain, el, base); err != ErrInvalid {
		t.Fatalf("err = %v, want %v", err, ErrInvalid)
	}
}

func TestExpireRejectsAfterLifetime(t *testing.T) {
	el := voters(4)
	e := NewEngine(DefaultConfig())
	n := 0
	var got Result
	e.OnResolve = func(p *Proposal, r Result) { got = r }
	e.Call(el[0], countingAction(&n), 0, 4, base)
	e.Cast(el[0], Yes, el, base)
	if r := e.Expire(el, base.Add(39*time.Second)); r != Pending {
		t.Fatalf("expired early: %v", r)
	}
	if !e.Alive(base.Add(39 * time.Second)) {
		t.Fatal("proposal should still be alive")
	}
	e.Expire(el, base.Add(40*time.Second))
	if got != Rejected || n != 0 {
		t.Fatalf("result = %v, executed = %d", got, n)
	}
}

func TestInvalidatedActionRejected(t *testing.T) {
	el := voters(3)
	e := NewEngine(DefaultConfig())
	target := true
	n := 0
	a := countingAction(&n)
	a.Valid = func() bool { return target }
	e.Call(el[0], a, 0, 3, base)
	target = false
	e.Cast(el[1], Yes, el, base)
	if n != 0 || e.Current() != nil {
		t.Fatal("an action that became invalid must be rejected")
	}
}

func TestForgetDropsBallot(t *testing.T) {
	el := voters(4)
	e := NewEngine(DefaultConfig())
	n := 0
	e.Call(el[0], countingAction(&n), 0, 4, base)
	e.Cast(el[1], Yes, el, base)
	e.Forget(1)
	if e.Current().Ballot(1) != Abstain {
		t.Fatal("ballot survived Forget")
	}
}

func TestParseKind(t *testing.T) {
	for k := Kind(0); k < NumKinds; k++ {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("nuke"); ok {
		t.Error("unknown kind parsed")
	}
}
