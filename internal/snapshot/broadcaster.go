package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/gasbugs/AC/internal/protocol"
)

// DefaultInterval is the minimum time between two world state sends.
const DefaultInterval = 40 * time.Millisecond

// Contribution is one connection's pending bytes for the current tick.
type Contribution struct {
	ID        int
	Positions []byte
	Messages  []byte
}

// Sink delivers frames to connections. Send takes ownership of the frame and
// must call its Done method exactly once, when the send completes or fails.
type Sink interface {
	Send(id int, ch protocol.Channel, f *Frame)
}

// Recorder receives the merged streams of every tick before they are fanned out.
type Recorder interface {
	Record(ch protocol.Channel, data []byte)
}

// Stats is a point-in-time view of the broadcaster counters.
type Stats struct {
	LiveBuffers int64 `json:"live_buffers"`
	Frames      int64 `json:"frames"`
	Bytes       int64 `json:"bytes"`
	Builds      int64 `json:"builds"`
}

// Broadcaster merges every connection's pending movement and message bytes
// into one shared buffer per stream and sends each connection the part of
// it that was not contributed by that connection.
type Broadcaster struct {
	interval time.Duration
	lastSend time.Time
	recorder Recorder

	live   atomic.Int64
	frames atomic.Int64
	bytes  atomic.Int64
	builds atomic.Int64
}

// NewBroadcaster creates a broadcaster gated at interval. A zero interval
// uses DefaultInterval.
func NewBroadcaster(interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Broadcaster{interval: interval}
}

// SetRecorder installs the sink that receives each merged stream.
func (b *Broadcaster) SetRecorder(r Recorder) {
	b.recorder = r
}

// Due reports whether a world state should be sent at now. The send clock
// advances in whole intervals so a late tick does not shift the schedule.
func (b *Broadcaster) Due(now time.Time) bool {
	if b.lastSend.IsZero() {
		b.lastSend = now
		return true
	}
	elapsed := now.Sub(b.lastSend)
	if elapsed < b.interval {
		return false
	}
	b.lastSend = b.lastSend.Add(elapsed - elapsed%b.interval)
	return true
}

type offsets struct {
	pos, posLen int
	msg, msgLen int
}

// Build merges contribs, issues the per-connection frames to sink and reports
// whether any frame was sent. reliable marks the message stream reliable.
// The shared buffers are released once every issued frame is done; if no
// frame referenced them they are released before Build returns.
func (b *Broadcaster) Build(contribs []Contribution, reliable bool, sink Sink) bool {
	b.builds.Add(1)

	var posLen, msgLen int
	for _, c := range contribs {
		posLen += len(c.Positions)
		if len(c.Messages) > 0 {
			msgLen += len(c.Messages) + 16
		}
	}

	positions := make([]byte, 0, 2*posLen)
	messages := protocol.NewWriter(2 * msgLen)
	offs := make([]offsets, len(contribs))

	for i, c := range contribs {
		offs[i] = offsets{pos: -1, msg: -1}
		if len(c.Positions) > 0 {
			offs[i].pos = len(positions)
			offs[i].posLen = len(c.Positions)
			positions = append(positions, c.Positions...)
		}
		if len(c.Messages) > 0 {
			offs[i].msg = messages.Len()
			messages.PutInt(int(protocol.MsgClient)).PutInt(c.ID).PutUint(len(c.Messages))
			messages.Put(c.Messages)
			offs[i].msgLen = messages.Len() - offs[i].msg
		}
	}

	psize, msize := len(positions), messages.Len()
	if b.recorder != nil {
		if psize > 0 {
			b.recorder.Record(protocol.ChannelMovement, positions)
		}
		if msize > 0 {
			b.recorder.Record(protocol.ChannelReliable, messages.Bytes())
		}
	}

	// Doubling each stream turns every "everything but mine" view into one
	// contiguous window starting right after the recipient's own bytes.
	positions = append(positions, positions...)
	msgData := messages.Bytes()
	msgData = append(msgData, msgData...)

	issued := 0
	release := func() { b.live.Add(-1) }
	b.live.Add(2)
	posBuf := NewSharedBuffer(positions, release)
	msgBuf := NewSharedBuffer(msgData, release)

	send := func(id int, ch protocol.Channel, f *Frame) {
		issued++
		b.frames.Add(1)
		b.bytes.Add(int64(len(f.Bytes())))
		sink.Send(id, ch, f)
	}

	for i, c := range contribs {
		o := offs[i]
		if psize > 0 && (o.pos < 0 || psize-o.posLen > 0) {
			start, n := 0, psize
			if o.pos >= 0 {
				start, n = o.pos+o.posLen, psize-o.posLen
			}
			send(c.ID, protocol.ChannelMovement, posBuf.Frame(start, n, false))
		}
		if msize > 0 && (o.msg < 0 || msize-o.msgLen > 0) {
			start, n := 0, msize
			if o.msg >= 0 {
				start, n = o.msg+o.msgLen, msize-o.msgLen
			}
			send(c.ID, protocol.ChannelReliable, msgBuf.Frame(start, n, reliable))
		}
	}

	posBuf.Release()
	msgBuf.Release()
	return issued > 0
}

// Stats returns the broadcaster counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		LiveBuffers: b.live.Load(),
		Frames:      b.frames.Load(),
		Bytes:       b.bytes.Load(),
		Builds:      b.builds.Load(),
	}
}
