package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gasbugs/AC/internal/access"
	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/db"
	"github.com/gasbugs/AC/internal/demo"
	"github.com/gasbugs/AC/internal/events"
	intnet "github.com/gasbugs/AC/internal/network"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/server"
	"github.com/gasbugs/AC/internal/util"
)

// GameServer is the part of the game server the API drives.
type GameServer interface {
	Snapshot() server.Status
	Kick(ctx context.Context, cn int) error
	Ban(ctx context.Context, cn int, d time.Duration) error
	Unban(ctx context.Context, addr string) (bool, error)
	ChangeMap(ctx context.Context, name string, mode protocol.GameMode, minutes int) error
	Say(ctx context.Context, text string) error
	SetMasterMode(ctx context.Context, mm protocol.MasterMode) error
	ReloadAccess(ctx context.Context) error
	StopDemo(ctx context.Context) error
	Bans() *access.Bans
	DemoStore() *demo.Store
}

// GameArchive is the finished game history.
type GameArchive interface {
	RecentGames(ctx context.Context, limit int) ([]events.GameReport, error)
	TopPlayers(ctx context.Context, limit int) ([]db.PlayerTotal, error)
}

// LagSource reports long ticks.
type LagSource interface {
	Data() server.LagData
	CheckThresholds() (server.LagAlert, bool)
}

// Server is the HTTP status and administration API.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	game     GameServer
	archive  GameArchive
	lag      LagSource
	feed     *Feed
	logger   zerolog.Logger
	started  time.Time

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates the API. archive and lag may be nil.
func NewServer(cfg *config.Config, eventBus *events.EventBus, game GameServer, archive GameArchive, lag LagSource) *Server {
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		eventBus: eventBus,
		game:     game,
		archive:  archive,
		lag:      lag,
		feed:     NewFeed(eventBus),
		logger:   util.ComponentLogger("api"),
		started:  time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetAPI()
	addr := net.JoinHostPort(s.cfg.GetServer().IP, strconv.Itoa(apiCfg.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	if apiCfg.TLS {
		host := s.cfg.GetServer().IP
		if host == "" {
			host = "127.0.0.1"
		}
		if _, err := util.EnsureCertificate(apiCfg.CertFile, apiCfg.KeyFile, []string{host, "localhost"}); err != nil {
			ln.Close()
			return fmt.Errorf("API certificate: %w", err)
		}
		cert, err := tls.LoadX509KeyPair(apiCfg.CertFile, apiCfg.KeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("API certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}

	s.logger.Info().Str("addr", addr).Bool("tls", apiCfg.TLS).Msg("status api starting")

	go s.feed.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.GetAPI()
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	origins := apiCfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(apiCfg.RateLimit).Middleware())

	pub := router.Group("/api")
	{
		pub.GET("/ping", s.handlePing)
		pub.GET("/status", s.handleStatus)
		pub.GET("/players", s.handlePlayers)
		pub.GET("/players/:cn", s.handlePlayer)
		pub.GET("/teams", s.handleTeams)
		pub.GET("/flags", s.handleFlags)
		pub.GET("/vote", s.handleVote)
		pub.GET("/games", s.handleGames)
		pub.GET("/games/top", s.handleTopPlayers)
		pub.GET("/feed", s.feed.Handler())
	}

	monitor := router.Group("/api")
	monitor.Use(RequireTokenIfSet(apiCfg.Token))
	{
		monitor.GET("/host", s.handleHost)
		monitor.GET("/lag", s.handleLag)
		monitor.GET("/broadcast", s.handleBroadcast)
	}

	admin := router.Group("/api/admin")
	admin.Use(RequireToken(apiCfg.Token))
	{
		admin.POST("/kick/:cn", s.handleKick)
		admin.POST("/ban/:cn", s.handleBan)
		admin.GET("/bans", s.handleBans)
		admin.POST("/unban", s.handleUnban)
		admin.POST("/map", s.handleMap)
		admin.POST("/say", s.handleSay)
		admin.POST("/mastermode", s.handleMasterMode)
		admin.POST("/reload", s.handleReload)
		admin.GET("/demos", s.handleDemos)
		admin.GET("/demos/:n", s.handleDemoDownload)
		admin.POST("/demos/stop", s.handleDemoStop)
		admin.GET("/config", s.handleGetConfig)
		admin.POST("/config/server", s.handleSetServerField)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "acserver status api", "status": "/api/status"})
	})

	return router
}

// Stop shuts the API down.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
