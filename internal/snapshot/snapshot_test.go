package snapshot

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/gasbugs/AC/internal/protocol"
)

type sent struct {
	id    int
	ch    protocol.Channel
	frame *Frame
	data  []byte
}

// holdSink keeps every frame pending until the test completes it.
type holdSink struct {
	frames []sent
}

func (s *holdSink) Send(id int, ch protocol.Channel, f *Frame) {
	s.frames = append(s.frames, sent{id: id, ch: ch, frame: f, data: append([]byte(nil), f.Bytes()...)})
}

func (s *holdSink) forID(id int, ch protocol.Channel) []byte {
	for _, f := range s.frames {
		if f.id == id && f.ch == ch {
			return f.data
		}
	}
	return nil
}

func wrap(id int, msg []byte) []byte {
	return protocol.NewWriter(16).PutInt(int(protocol.MsgClient)).PutInt(id).PutUint(len(msg)).Put(msg).Copy()
}

func TestBuildExcludesOwnContribution(t *testing.T) {
	contribs := []Contribution{
		{ID: 0, Positions: []byte{1, 1}, Messages: []byte{10}},
		{ID: 1, Positions: []byte{2, 2, 2}},
		{ID: 2, Messages: []byte{30, 31}},
		{ID: 3},
	}
	sink := &holdSink{}
	b := NewBroadcaster(0)
	if !b.Build(contribs, true, sink) {
		t.Fatal("Build reported nothing sent")
	}

	tests := []struct {
		id       int
		wantPos  []byte
		wantMsgs []byte
	}{
		{0, []byte{2, 2, 2}, wrap(2, []byte{30, 31})},
		{1, []byte{1, 1}, append(wrap(0, []byte{10}), wrap(2, []byte{30, 31})...)},
		{2, []byte{1, 1, 2, 2, 2}, wrap(0, []byte{10})},
		{3, []byte{1, 1, 2, 2, 2}, append(wrap(0, []byte{10}), wrap(2, []byte{30, 31})...)},
	}
	for _, tt := range tests {
		if got := sink.forID(tt.id, protocol.ChannelMovement); !bytes.Equal(got, tt.wantPos) {
			t.Errorf("client %d positions = %v, want %v", tt.id, got, tt.wantPos)
		}
		if got := sink.forID(tt.id, protocol.ChannelReliable); !bytes.Equal(got, tt.wantMsgs) {
			t.Errorf("client %d messages = %v, want %v", tt.id, got, tt.wantMsgs)
		}
	}
	for _, f := range sink.frames {
		f.frame.Done()
	}
	if live := b.Stats().LiveBuffers; live != 0 {
		t.Fatalf("live buffers = %d after all frames done", live)
	}
}

func TestBuildSoleContributorGetsNothing(t *testing.T) {
	sink := &holdSink{}
	b := NewBroadcaster(0)
	sentAny := b.Build([]Contribution{{ID: 5, Positions: []byte{9}, Messages: []byte{1}}}, false, sink)
	if sentAny {
		t.Fatal("a lone contributor must not be echoed its own bytes")
	}
	if len(sink.frames) != 0 {
		t.Fatalf("frames = %d, want 0", len(sink.frames))
	}
	if live := b.Stats().LiveBuffers; live != 0 {
		t.Fatalf("unreferenced buffers must be released immediately, live = %d", live)
	}
}

func TestBuildNoContributions(t *testing.T) {
	sink := &holdSink{}
	b := NewBroadcaster(0)
	if b.Build([]Contribution{{ID: 0}, {ID: 1}}, false, sink) {
		t.Fatal("nothing to send")
	}
	if b.Stats().LiveBuffers != 0 {
		t.Fatal("buffers leaked")
	}
}

func TestReliableFlagOnlyOnMessages(t *testing.T) {
	sink := &holdSink{}
	b := NewBroadcaster(0)
	b.Build([]Contribution{{ID: 0, Positions: []byte{1}, Messages: []byte{1}}, {ID: 1}}, true, sink)
	for _, f := range sink.frames {
		if f.ch == protocol.ChannelMovement && f.frame.Reliable() {
			t.Error("movement frames must be unreliable")
		}
		if f.ch == protocol.ChannelReliable && !f.frame.Reliable() {
			t.Error("message frames must carry the reliable flag")
		}
		f.frame.Done()
	}
}

func TestSharedBufferReleasedExactlyOnceUnderRandomCompletion(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		releases := 0
		buf := NewSharedBuffer(make([]byte, 64), func() { releases++ })
		n := rng.Intn(20)
		frames := make([]*Frame, 0, n)
		for i := 0; i < n; i++ {
			frames = append(frames, buf.Frame(rng.Intn(32), rng.Intn(32), false))
			// some sends complete while others are still being issued
			if rng.Intn(3) == 0 && len(frames) > 0 {
				k := rng.Intn(len(frames))
				frames[k].Done()
			}
		}
		buf.Release()
		rng.Shuffle(len(frames), func(i, j int) { frames[i], frames[j] = frames[j], frames[i] })
		for i, f := range frames {
			if buf.Released() {
				for _, rest := range frames[i:] {
					if !rest.done.Load() {
						t.Fatalf("round %d: released with frame still in flight", round)
					}
				}
			}
			f.Done()
			f.Done()
		}
		if releases != 1 {
			t.Fatalf("round %d: releases = %d, want 1", round, releases)
		}
		if buf.Uses() != 0 {
			t.Fatalf("round %d: uses = %d, want 0", round, buf.Uses())
		}
	}
}

func TestSharedBufferConcurrentDone(t *testing.T) {
	var mu sync.Mutex
	releases := 0
	buf := NewSharedBuffer(make([]byte, 8), func() {
		mu.Lock()
		releases++
		mu.Unlock()
	})
	frames := make([]*Frame, 100)
	for i := range frames {
		frames[i] = buf.Frame(0, 8, true)
	}
	buf.Release()

	var wg sync.WaitGroup
	for _, f := range frames {
		wg.Add(1)
		go func(f *Frame) {
			defer wg.Done()
			f.Done()
		}(f)
	}
	wg.Wait()
	if releases != 1 {
		t.Fatalf("releases = %d, want 1", releases)
	}
}

func TestBuildRandomizedNeverEchoes(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 100; round++ {
		n := 1 + rng.Intn(8)
		contribs := make([]Contribution, n)
		for i := range contribs {
			contribs[i].ID = i
			if rng.Intn(2) == 0 {
				contribs[i].Positions = bytes.Repeat([]byte{byte(100 + i)}, 1+rng.Intn(4))
			}
			if rng.Intn(2) == 0 {
				contribs[i].Messages = bytes.Repeat([]byte{byte(100 + i)}, 1+rng.Intn(4))
			}
		}
		sink := &holdSink{}
		b := NewBroadcaster(0)
		b.Build(contribs, false, sink)
		for _, f := range sink.frames {
			if f.ch == protocol.ChannelMovement && bytes.IndexByte(f.data, byte(100+f.id)) >= 0 {
				t.Fatalf("round %d: client %d received its own position bytes", round, f.id)
			}
		}
		rng.Shuffle(len(sink.frames), func(i, j int) { sink.frames[i], sink.frames[j] = sink.frames[j], sink.frames[i] })
		for _, f := range sink.frames {
			f.frame.Done()
		}
		if live := b.Stats().LiveBuffers; live != 0 {
			t.Fatalf("round %d: live buffers = %d", round, live)
		}
	}
}

func TestDueGatesInterval(t *testing.T) {
	b := NewBroadcaster(40 * time.Millisecond)
	start := time.Unix(1000, 0)
	if !b.Due(start) {
		t.Fatal("first call must be due")
	}
	if b.Due(start.Add(39 * time.Millisecond)) {
		t.Fatal("due before the interval elapsed")
	}
	if !b.Due(start.Add(95 * time.Millisecond)) {
		t.Fatal("not due after the interval")
	}
	// schedule stays aligned to 80ms, so 120ms is due again
	if !b.Due(start.Add(120 * time.Millisecond)) {
		t.Fatal("schedule drifted")
	}
}
