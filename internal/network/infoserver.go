package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/gasbugs/AC/internal/server"
	"github.com/gasbugs/AC/internal/util"
)

// Per source address limits for status queries.
const (
	DefaultQueriesPerSec = 10
	DefaultQueryBurst    = 20
	infoBufSize          = 512
	limiterIdle          = 5 * time.Minute
)

// StatusSource provides the latest published server status.
type StatusSource interface {
	Snapshot() server.Status
}

// InfoServer answers the UDP status queries server browsers send to the
// port next to the game port.
type InfoServer struct {
	src    StatusSource
	logger zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int

	conn *net.UDPConn
}

type ipLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewInfoServer creates a responder for src.
func NewInfoServer(src StatusSource) *InfoServer {
	return &InfoServer{
		src:      src,
		logger:   util.ComponentLogger("info"),
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(DefaultQueriesPerSec),
		burst:    DefaultQueryBurst,
	}
}

// Listen binds the UDP socket. Serve must be called afterwards.
func (s *InfoServer) Listen(ctx context.Context, ip string, port int) error {
	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(ip, fmt.Sprint(port)))
	if err != nil {
		return fmt.Errorf("failed to open info port %d: %w", port, err)
	}
	s.conn = pc.(*net.UDPConn)
	s.logger.Info().Int("port", port).Msg("info port open")
	return nil
}

// Addr returns the bound address.
func (s *InfoServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve answers queries until ctx is cancelled.
func (s *InfoServer) Serve(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("info server not listening")
	}
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, infoBufSize)
	for {
		n, remote, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("info port closed")
				return nil
			default:
				s.logger.Error().Err(err).Msg("udp read error")
				continue
			}
		}
		if n == 0 {
			continue
		}
		if !s.allow(remote.IP.String(), time.Now()) {
			s.logger.Trace().Str("remote", remote.String()).Msg("query rate exceeded")
			continue
		}

		st := s.src.Snapshot()
		for _, reply := range server.ServerInfo(&st, buf[:n]) {
			if _, err := s.conn.WriteToUDP(reply, remote); err != nil {
				s.logger.Warn().Err(err).Str("remote", remote.String()).Msg("failed to send status reply")
				break
			}
		}
	}
}

func (s *InfoServer) allow(ip string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[ip]
	if !ok {
		if len(s.limiters) > 1024 {
			s.sweep(now)
		}
		l = &ipLimiter{lim: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[ip] = l
	}
	l.seen = now
	return l.lim.AllowN(now, 1)
}

func (s *InfoServer) sweep(now time.Time) {
	for ip, l := range s.limiters {
		if now.Sub(l.seen) > limiterIdle {
			delete(s.limiters, ip)
		}
	}
}

// Close releases the socket.
func (s *InfoServer) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
