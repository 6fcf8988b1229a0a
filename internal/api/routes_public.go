package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": time.Since(s.started).Round(time.Second).String()})
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.game.Snapshot()
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePlayers(c *gin.Context) {
	st := s.game.Snapshot()
	c.JSON(http.StatusOK, gin.H{"players": st.Players, "clients": st.Clients, "max_clients": st.MaxClients})
}

func (s *Server) handlePlayer(c *gin.Context) {
	cn, ok := parseCN(c)
	if !ok {
		return
	}
	st := s.game.Snapshot()
	p, found := st.Player(cn)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such client", "cn": cn})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleTeams(c *gin.Context) {
	st := s.game.Snapshot()
	c.JSON(http.StatusOK, gin.H{"mode": st.Mode, "teams": st.Teams})
}

func (s *Server) handleFlags(c *gin.Context) {
	st := s.game.Snapshot()
	c.JSON(http.StatusOK, gin.H{"mode": st.Mode, "flags": st.Flags})
}

func (s *Server) handleVote(c *gin.Context) {
	st := s.game.Snapshot()
	if st.Vote == nil {
		c.JSON(http.StatusOK, gin.H{"pending": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": true, "vote": st.Vote})
}

func (s *Server) handleGames(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game archive is disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 200 {
		limit = 20
	}
	games, err := s.archive.RecentGames(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read game archive")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (s *Server) handleTopPlayers(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game archive is disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	top, err := s.archive.TopPlayers(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read game archive")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": top})
}

// parseCN reads the :cn path parameter, answering 400 when it is invalid.
func parseCN(c *gin.Context) (int, bool) {
	cn, err := strconv.Atoi(c.Param("cn"))
	if err != nil || cn < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client number"})
		return 0, false
	}
	return cn, true
}
