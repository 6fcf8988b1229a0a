package server

import (
	"testing"
	"time"

	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/vote"
)

func callVoteErr(t *testing.T, tr *testTransport, p Peer) int {
	t.Helper()
	errs := tr.packets(p, protocol.MsgCallVoteErr)
	if len(errs) == 0 {
		t.Fatal("no CALLVOTEERR sent")
	}
	r := protocol.NewReader(errs[len(errs)-1].data)
	r.GetInt()
	return r.GetInt()
}

func TestMapVote(t *testing.T) {
	h := newHarness(t, nil)
	h.startMap("ac_complex", protocol.ModeTDM, 15)
	_, ap := h.join("alice")
	_, bp := h.join("bob")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindMap), "ac_desert", int(protocol.ModeCTF)))
	if len(h.tr.packets(ap, protocol.MsgCallVoteSuc)) != 1 {
		t.Fatal("call not acknowledged")
	}
	if len(h.tr.packets(bp, protocol.MsgClient)) == 0 {
		t.Fatal("vote call not relayed to bob")
	}
	if h.s.votes.Current() == nil {
		t.Fatal("no pending vote")
	}

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.Yes)))
	if h.s.game.mapName != "ac_complex" {
		t.Fatal("half the votes passed the proposal")
	}
	h.recv(bp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.Yes)))

	if h.s.game.mapName != "ac_desert" || h.s.game.mode != protocol.ModeCTF {
		t.Fatalf("map %q mode %v after accepted vote", h.s.game.mapName, h.s.game.mode)
	}
	if len(h.tr.packets(bp, protocol.MsgVoteResult)) != 1 {
		t.Error("vote result not broadcast")
	}
}

func TestKickVote(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	_, bp := h.join("bob")
	c, cp := h.join("carol")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.Yes)))
	if _, gone := h.tr.dropped[cp]; gone {
		t.Fatal("one of three votes kicked carol")
	}
	h.recv(bp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.Yes)))
	if got := h.tr.dropped[cp]; got != protocol.DiscKick {
		t.Fatalf("carol dropped with %v, want kick", got)
	}
}

func TestKickVoteBetweenTwo(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	b, bp := h.join("bob")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), b.ID))
	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.Yes)))
	if _, gone := h.tr.dropped[bp]; gone {
		t.Fatal("one of two votes kicked bob")
	}
	h.recv(bp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.Yes)))
	if got := h.tr.dropped[bp]; got != protocol.DiscKick {
		t.Fatalf("bob dropped with %v, want kick", got)
	}

	h.advance(time.Minute)
	if n := len(h.tr.packets(ap, protocol.MsgVoteResult)); n != 1 {
		t.Errorf("alice saw %d vote results, want 1", n)
	}
	if h.s.votes.Current() != nil {
		t.Error("proposal still live after it passed")
	}
}

func TestVoteSurvivesMapChange(t *testing.T) {
	h := newHarness(t, nil)
	h.startMap("ac_complex", protocol.ModeTDM, 15)
	_, ap := h.join("alice")
	_, bp := h.join("bob")
	c, cp := h.join("carol")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	h.startMap("ac_desert", protocol.ModeTDM, 15)
	if h.s.votes.Current() == nil {
		t.Fatal("map change dropped the pending vote")
	}

	h.advance(41 * time.Second)
	results := h.tr.packets(bp, protocol.MsgVoteResult)
	if len(results) != 1 {
		t.Fatalf("bob saw %d vote results, want 1", len(results))
	}
	r := protocol.NewReader(results[0].data)
	r.GetInt()
	if got := vote.Result(r.GetInt()); got != vote.Rejected {
		t.Errorf("result = %v, want rejected", got)
	}
	if _, gone := h.tr.dropped[cp]; gone {
		t.Error("expired kick was executed")
	}
}

func TestVoteRejectedByMajority(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	_, bp := h.join("bob")
	c, cp := h.join("carol")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	h.recv(bp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.No)))
	h.recv(cp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.No)))

	if h.s.votes.Current() != nil {
		t.Fatal("vote still pending after a majority against it")
	}
	if _, gone := h.tr.dropped[cp]; gone {
		t.Fatal("rejected kick was executed")
	}
}

func TestVoteAgainstAdminInvalid(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	b, _ := h.join("bob")
	h.s.changeRole(b, protocol.RoleAdmin, "", true)
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), b.ID))
	if code := callVoteErr(t, h.tr, ap); code != int(vote.ErrInvalid) {
		t.Fatalf("error code %d, want invalid", code)
	}
}

func TestSecondVoteWhilePending(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	_, bp := h.join("bob")
	c, _ := h.join("carol")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	h.recv(bp, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindShuffleTeams)))
	if code := callVoteErr(t, h.tr, bp); code != int(vote.ErrCurrent) {
		t.Fatalf("error code %d, want current", code)
	}
}

func TestDoubleVoteRefused(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	_, bp := h.join("bob")
	c, _ := h.join("carol")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	h.recv(bp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.No)))
	h.recv(bp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.No)))
	if code := callVoteErr(t, h.tr, bp); code != int(vote.ErrMultiple) {
		t.Fatalf("error code %d, want multiple", code)
	}
}

func TestLateJoinerCannotVote(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	h.join("bob")
	c, _ := h.join("carol")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	_, dp := h.join("dave")
	h.recv(dp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.Yes)))
	if code := callVoteErr(t, h.tr, dp); code != int(vote.ErrPermission) {
		t.Fatalf("error code %d, want permission", code)
	}
}

func TestDisabledVoteKind(t *testing.T) {
	h := newHarness(t, func(sc *config.ServerConfig) { sc.VoteDisabled = []string{"shuffleteams"} })
	_, ap := h.join("alice")
	h.join("bob")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindShuffleTeams)))
	if code := callVoteErr(t, h.tr, ap); code != int(vote.ErrDisabled) {
		t.Fatalf("error code %d, want disabled", code)
	}
}

func TestVoteExpires(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	h.join("bob")
	c, cp := h.join("carol")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	h.advance(41 * time.Second)
	if h.s.votes.Current() != nil {
		t.Fatal("vote outlived its lifetime")
	}
	if _, gone := h.tr.dropped[cp]; gone {
		t.Fatal("expired vote executed")
	}
}

func TestVoteTargetLeaving(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	h.join("bob")
	_, cp := h.join("carol")
	h.advance(time.Second)

	c := h.s.byPeer[cp]
	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	h.s.handleTransport(TransportEvent{Type: TransportDisconnect, Peer: cp})
	if h.s.votes.Current() != nil {
		t.Fatal("vote on a gone client still pending")
	}
}

func TestAdminVoteDecides(t *testing.T) {
	h := newHarness(t, nil)
	_, ap := h.join("alice")
	b, bp := h.join("bob")
	c, cp := h.join("carol")
	h.join("dave")
	h.s.changeRole(b, protocol.RoleAdmin, "", true)
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindKick), c.ID))
	h.recv(bp, protocol.ChannelReliable, protocol.Build(protocol.MsgVote, int(vote.Yes)))
	if got := h.tr.dropped[cp]; got != protocol.DiscKick {
		t.Fatalf("admin yes did not pass the vote: %v", got)
	}
}

func TestMasterModeVote(t *testing.T) {
	h := newHarness(t, nil)
	a, ap := h.join("alice")
	h.s.changeRole(a, protocol.RoleAdmin, "", true)
	h.join("bob")
	h.advance(time.Second)

	h.recv(ap, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVote, int(vote.KindMasterMode), int(protocol.MasterPrivate)))
	if h.s.masterMode != protocol.MasterPrivate {
		t.Fatalf("mastermode %v after an admin's call", h.s.masterMode)
	}
}
