package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/server"
)

// adminError maps a game server error to a response.
func (s *Server) adminError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, server.ErrNoClient):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such client"})
	case errors.Is(err, server.ErrInvalidMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, server.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy, try again"})
	default:
		s.logger.Error().Err(err).Str("action", action).Msg("admin request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleKick(c *gin.Context) {
	cn, ok := parseCN(c)
	if !ok {
		return
	}
	if err := s.game.Kick(c.Request.Context(), cn); err != nil {
		s.adminError(c, "kick", err)
		return
	}
	s.logger.Info().Int("cn", cn).Str("client_ip", c.ClientIP()).Msg("client kicked via api")
	c.JSON(http.StatusOK, gin.H{"status": "kicked", "cn": cn})
}

type banRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) handleBan(c *gin.Context) {
	cn, ok := parseCN(c)
	if !ok {
		return
	}
	var req banRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Minutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must not be negative"})
		return
	}
	if err := s.game.Ban(c.Request.Context(), cn, time.Duration(req.Minutes)*time.Minute); err != nil {
		s.adminError(c, "ban", err)
		return
	}
	s.logger.Info().Int("cn", cn).Int("minutes", req.Minutes).Msg("client banned via api")
	c.JSON(http.StatusOK, gin.H{"status": "banned", "cn": cn})
}

func (s *Server) handleBans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bans": s.game.Bans().List(time.Now())})
}

type unbanRequest struct {
	Address string `json:"address" binding:"required"`
}

func (s *Server) handleUnban(c *gin.Context) {
	var req unbanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	removed, err := s.game.Unban(c.Request.Context(), strings.TrimSpace(req.Address))
	if err != nil {
		s.adminError(c, "unban", err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "address is not banned"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unbanned", "address": req.Address})
}

type mapRequest struct {
	Map     string `json:"map" binding:"required"`
	Mode    string `json:"mode" binding:"required"`
	Minutes *int   `json:"minutes"`
}

func (s *Server) handleMap(c *gin.Context) {
	var req mapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, ok := protocol.ParseMode(req.Mode)
	if !ok {
		if n, err := strconv.Atoi(req.Mode); err == nil {
			mode, ok = protocol.GameMode(n), true
		}
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown mode %q", req.Mode)})
		return
	}
	minutes := -1
	if req.Minutes != nil {
		minutes = *req.Minutes
	}
	if err := s.game.ChangeMap(c.Request.Context(), req.Map, mode, minutes); err != nil {
		s.adminError(c, "map", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "changed", "map": req.Map, "mode": mode.String()})
}

type sayRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleSay(c *gin.Context) {
	var req sayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.game.Say(c.Request.Context(), req.Text); err != nil {
		s.adminError(c, "say", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

type masterModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) handleMasterMode(c *gin.Context) {
	var req masterModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var mm protocol.MasterMode
	switch strings.ToLower(req.Mode) {
	case "open", "0":
		mm = protocol.MasterOpen
	case "private", "1":
		mm = protocol.MasterPrivate
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be open or private"})
		return
	}
	if err := s.game.SetMasterMode(c.Request.Context(), mm); err != nil {
		s.adminError(c, "mastermode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "changed", "mastermode": mm.String()})
}

func (s *Server) handleReload(c *gin.Context) {
	if err := s.game.ReloadAccess(c.Request.Context()); err != nil {
		s.adminError(c, "reload", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (s *Server) handleDemos(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"demos": s.game.DemoStore().Demos(), "recording": s.game.Snapshot().Recording})
}

func (s *Server) handleDemoDownload(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demo number"})
		return
	}
	d, ok := s.game.DemoStore().Get(n)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such demo"})
		return
	}
	name := fmt.Sprintf("%s_%s_%s.dmo", d.Header.Started.UTC().Format("20060102_1504"), d.Header.ModeName, d.Header.Map)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/octet-stream", d.Data)
}

func (s *Server) handleDemoStop(c *gin.Context) {
	if err := s.game.StopDemo(c.Request.Context()); err != nil {
		s.adminError(c, "stop demo", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// handleGetConfig returns the configuration with secrets removed.
func (s *Server) handleGetConfig(c *gin.Context) {
	srv := s.cfg.GetServer()
	srv.Password = redact(srv.Password)
	srv.AdminPassword = redact(srv.AdminPassword)
	apiCfg := s.cfg.GetAPI()
	apiCfg.Token = redact(apiCfg.Token)
	mqttCfg := s.cfg.GetMQTT()
	mqttCfg.Password = redact(mqttCfg.Password)

	c.JSON(http.StatusOK, gin.H{
		"server":  srv,
		"demo":    s.cfg.GetDemo(),
		"api":     apiCfg,
		"mqtt":    mqttCfg,
		"archive": s.cfg.GetArchive(),
		"timers":  s.cfg.GetTimers(),
	})
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

type fieldRequest struct {
	Key   string      `json:"key" binding:"required"`
	Value interface{} `json:"value"`
}

// handleSetServerField changes one server setting, saves the file and
// tells the game server.
func (s *Server) handleSetServerField(c *gin.Context) {
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.UpdateServerField(req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.Save(); err != nil {
		s.logger.Error().Err(err).Msg("failed to save config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: "server",
			Key:     req.Key,
			Value:   req.Value,
		},
	})
	s.logger.Info().Str("key", req.Key).Str("client_ip", c.ClientIP()).Msg("server setting changed via api")
	c.JSON(http.StatusOK, gin.H{"status": "updated", "key": req.Key})
}
