package server

import (
	"testing"
	"time"
)

func TestEventQueueDropsOldest(t *testing.T) {
	var q eventQueue
	for i := 0; i < maxEvents; i++ {
		if q.push(gameEvent{kind: evReload, gun: i}) {
			t.Fatalf("event %d dropped before the queue was full", i)
		}
	}
	if !q.push(gameEvent{kind: evReload, gun: maxEvents}) {
		t.Fatal("overflow not reported")
	}
	if q.len() != maxEvents || q.dropped != 1 {
		t.Fatalf("len = %d dropped = %d", q.len(), q.dropped)
	}
	if first, last := q.events[0].gun, q.events[q.len()-1].gun; first != 1 || last != maxEvents {
		t.Errorf("queue spans %d..%d, want 1..%d", first, last, maxEvents)
	}

	for i := 0; i < 3*maxEvents; i++ {
		q.push(gameEvent{kind: evReload})
		if q.len() > maxEvents {
			t.Fatalf("queue grew to %d", q.len())
		}
	}
}

func TestEventQueueDropsShotWithHits(t *testing.T) {
	var q eventQueue
	q.push(gameEvent{kind: evShot, millis: time.Second})
	q.push(gameEvent{kind: evHit, target: 1})
	q.push(gameEvent{kind: evHit, target: 2})
	for q.len() < maxEvents {
		q.push(gameEvent{kind: evAkimbo})
	}

	q.push(gameEvent{kind: evReload})
	if q.dropped != 3 {
		t.Errorf("dropped %d events, want the shot and its 2 hits", q.dropped)
	}
	if q.events[0].kind != evAkimbo || q.len() != maxEvents-2 {
		t.Errorf("head = %v len = %d", q.events[0].kind, q.len())
	}
}
