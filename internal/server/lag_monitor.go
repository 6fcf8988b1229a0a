package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gasbugs/AC/internal/events"
)

// Long ticks per hour that raise an alert.
const (
	LagWarningThreshold  = 10
	LagCriticalThreshold = 50
)

const lagHistory = 1000

// LagMonitor tracks overrunning ticks of the game loop and raises alerts
// when they become frequent.
type LagMonitor struct {
	mu       sync.RWMutex
	eventBus *events.EventBus
	data     LagData

	warningThreshold  int
	criticalThreshold int
}

// LagData is the long tick history.
type LagData struct {
	TotalEvents    int         `json:"total_events"`
	EventsThisHour int         `json:"events_this_hour"`
	LastEventTime  time.Time   `json:"last_event_time"`
	MaxDuration    float64     `json:"max_duration_ms"`
	AvgDuration    float64     `json:"avg_duration_ms"`
	History        []LagEvent  `json:"history"`
	HourlyBuckets  map[int]int `json:"hourly_buckets"`
}

// LagEvent is one long tick.
type LagEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration_ms"`
	Clients   int       `json:"clients"`
}

// NewLagMonitor creates a lag monitor listening on eventBus.
func NewLagMonitor(eventBus *events.EventBus) *LagMonitor {
	lm := &LagMonitor{
		eventBus:          eventBus,
		data:              LagData{HourlyBuckets: make(map[int]int)},
		warningThreshold:  LagWarningThreshold,
		criticalThreshold: LagCriticalThreshold,
	}
	eventBus.Subscribe(events.EventLongTick, "lag_monitor", lm.handleLongTick)
	return lm
}

func (lm *LagMonitor) handleLongTick(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.LongTickPayload)
	if !ok {
		return nil
	}
	lm.record(event.Time, payload)
	return nil
}

func (lm *LagMonitor) record(now time.Time, p events.LongTickPayload) {
	if now.IsZero() {
		now = time.Now()
	}
	ms := float64(p.Duration) / float64(time.Millisecond)

	lm.mu.Lock()
	defer lm.mu.Unlock()
	d := &lm.data
	d.TotalEvents++
	d.LastEventTime = now
	d.History = append(d.History, LagEvent{Timestamp: now, Duration: ms, Clients: p.Clients})
	if len(d.History) > lagHistory {
		d.History = d.History[len(d.History)-lagHistory:]
	}
	if ms > d.MaxDuration {
		d.MaxDuration = ms
	}
	total := 0.0
	hourAgo := now.Add(-time.Hour)
	d.EventsThisHour = 0
	for _, e := range d.History {
		total += e.Duration
		if e.Timestamp.After(hourAgo) {
			d.EventsThisHour++
		}
	}
	d.AvgDuration = total / float64(len(d.History))
	d.HourlyBuckets[now.Hour()]++
}

// Data returns a copy of the lag history.
func (lm *LagMonitor) Data() LagData {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	out := lm.data
	out.History = append([]LagEvent(nil), lm.data.History...)
	out.HourlyBuckets = make(map[int]int, len(lm.data.HourlyBuckets))
	for k, v := range lm.data.HourlyBuckets {
		out.HourlyBuckets[k] = v
	}
	return out
}

// LagAlert is a crossed threshold.
type LagAlert struct {
	Level   string `json:"level"`
	Events  int    `json:"events"`
	Message string `json:"message"`
}

// CheckThresholds evaluates the long ticks of the last hour.
func (lm *LagMonitor) CheckThresholds() (LagAlert, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	n := lm.data.EventsThisHour
	switch {
	case n >= lm.criticalThreshold:
		return LagAlert{Level: "critical", Events: n, Message: fmt.Sprintf("%d long ticks in the last hour", n)}, true
	case n >= lm.warningThreshold:
		return LagAlert{Level: "warning", Events: n, Message: fmt.Sprintf("%d long ticks in the last hour", n)}, true
	}
	return LagAlert{}, false
}

// Check runs one threshold evaluation and publishes an alert if needed.
func (lm *LagMonitor) Check(ctx context.Context) {
	alert, ok := lm.CheckThresholds()
	if !ok {
		return
	}
	data := lm.Data()
	log.Warn().
		Str("level", alert.Level).
		Int("events", alert.Events).
		Float64("avg_ms", data.AvgDuration).
		Msg("lag threshold alert")
	lm.eventBus.Emit(ctx, events.Event{
		Type:   events.EventLagAlert,
		Source: "lag_monitor",
		Payload: events.LagAlertPayload{
			Level:   alert.Level,
			Message: alert.Message,
			AvgMs:   data.AvgDuration,
			MaxMs:   data.MaxDuration,
		},
	})
}
