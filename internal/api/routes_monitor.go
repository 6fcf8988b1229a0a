package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/gasbugs/AC/internal/util"
)

// handleHost reports host and process resource use.
func (s *Server) handleHost(c *gin.Context) {
	resp := gin.H{"system": util.GetSystemInfo()}

	if cpu, err := util.GetCPUUsage(); err == nil {
		resp["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		resp["memory"] = mem
	}
	if proc, err := util.GetProcessStats(); err == nil {
		resp["process"] = proc
	}

	dir := s.cfg.GetDemo().Directory
	if dir == "" {
		dir, _ = os.Getwd()
	}
	if disk, err := util.GetDiskUsage(dir); err == nil {
		resp["disk"] = disk
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLag(c *gin.Context) {
	if s.lag == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lag monitor is disabled"})
		return
	}
	resp := gin.H{"data": s.lag.Data()}
	if alert, ok := s.lag.CheckThresholds(); ok {
		resp["alert"] = alert
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBroadcast(c *gin.Context) {
	st := s.game.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"broadcast": st.Broadcast,
		"bytes_in":  st.BytesIn,
		"bytes_out": st.BytesOut,
		"clients":   st.Clients,
		"feed":      s.feed.Clients(),
	})
}
