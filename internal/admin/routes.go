package admin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/convoctl/internal/auth"
	"github.com/danmuck/convoctl/internal/controlplane"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type runningSession struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status,omitempty"`
	StartTS int64  `json:"start_ts,omitempty"`
	Channel string `json:"channel,omitempty"`
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).Round(time.Second).String(),
			"service": "convoctl",
			"version": s.cfg.Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	if s.cfg.Auth != nil {
		api.Use(s.requireToken())
	}

	api.GET("/agent/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.ctrl.State())
	})

	// Start and Stop outlive the request; the caller polls /agent/status.
	api.POST("/agent/start", func(c *gin.Context) {
		s.dispatch(context.WithoutCancel(c.Request.Context()), "start", s.ctrl.Start)
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	api.POST("/agent/stop", func(c *gin.Context) {
		s.dispatch(context.WithoutCancel(c.Request.Context()), "stop", s.ctrl.Stop)
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	if s.cfg.Lister != nil {
		api.GET("/agents/running", s.handleRunning)
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.CheckHeader(s.cfg.Auth, c.GetHeader("Authorization")); err != nil {
			s.logger.Warn().Str("path", c.Request.URL.Path).Err(err).Msg("admin request denied")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleRunning(c *gin.Context) {
	resp, err := s.cfg.Lister.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if resp.Status != http.StatusOK {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": fmt.Sprintf("control plane status %d", resp.Status)})
		return
	}
	out, err := controlplane.ParseListActive(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	sessions := make([]runningSession, 0, len(out.Sessions))
	for _, rs := range out.Sessions {
		sessions = append(sessions, runningSession{
			AgentID: rs.AgentID,
			Status:  rs.Status,
			StartTS: rs.StartTS,
			Channel: rs.Channel,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": out.Count, "data": sessions})
}
