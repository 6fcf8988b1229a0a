package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/util"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
	feedQueue      = 64
)

// Feed streams bus events to websocket clients as JSON.
type Feed struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	conn  *websocket.Conn
	send  chan []byte
	types map[events.EventType]bool
	once  sync.Once
}

func (fc *feedClient) wants(t events.EventType) bool {
	return len(fc.types) == 0 || fc.types[t]
}

func (fc *feedClient) close() {
	fc.once.Do(func() { close(fc.send) })
}

// NewFeed subscribes a feed to every event on bus.
func NewFeed(bus *events.EventBus) *Feed {
	f := &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  util.ComponentLogger("feed"),
		clients: make(map[*feedClient]struct{}),
	}
	bus.Subscribe(events.EventAny, "api.feed", f.onEvent)
	return f
}

// Clients returns the number of connected feed clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Run closes every client once ctx is done.
func (f *Feed) Run(ctx context.Context) {
	<-ctx.Done()
	f.mu.Lock()
	f.closed = true
	for fc := range f.clients {
		fc.close()
		delete(f.clients, fc)
	}
	f.mu.Unlock()
}

func (f *Feed) onEvent(ctx context.Context, e events.Event) error {
	if e.Type == events.EventLongTick {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for fc := range f.clients {
		if !fc.wants(e.Type) {
			continue
		}
		select {
		case fc.send <- data:
		default:
			// too slow, drop it
			f.logger.Debug().Str("remote", fc.conn.RemoteAddr().String()).Msg("feed client dropped")
			fc.close()
			delete(f.clients, fc)
		}
	}
	return nil
}

// Handler upgrades the request to a websocket. The optional types query
// parameter limits the stream to a comma separated list of event types.
func (f *Feed) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			f.logger.Debug().Err(err).Msg("feed upgrade failed")
			return
		}

		fc := &feedClient{conn: conn, send: make(chan []byte, feedQueue)}
		if types := c.Query("types"); types != "" {
			fc.types = make(map[events.EventType]bool)
			for _, t := range strings.Split(types, ",") {
				fc.types[events.EventType(strings.TrimSpace(t))] = true
			}
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			conn.Close()
			return
		}
		f.clients[fc] = struct{}{}
		f.mu.Unlock()
		f.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("feed client connected")

		go f.writeLoop(fc)
		f.readLoop(fc)
	}
}

// readLoop only handles control frames and notices the peer going away.
func (f *Feed) readLoop(fc *feedClient) {
	defer func() {
		f.mu.Lock()
		if _, ok := f.clients[fc]; ok {
			delete(f.clients, fc)
			fc.close()
		}
		f.mu.Unlock()
	}()
	fc.conn.SetReadLimit(512)
	fc.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	fc.conn.SetPongHandler(func(string) error {
		return fc.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := fc.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writeLoop(fc *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		fc.conn.Close()
	}()
	for {
		select {
		case data, ok := <-fc.send:
			fc.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				fc.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := fc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			fc.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := fc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
