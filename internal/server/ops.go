package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Operator controls. Pausing stops new runs at the gate; in-flight runs
// finish their current batch and report as usual.

func (s *Server) handlePause(c *gin.Context) {
	if err := s.gate.Pause(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pause flag not persisted"})
		return
	}
	s.log.Warn("sync paused by operator")
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResume(c *gin.Context) {
	if err := s.gate.Resume(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pause flag not cleared"})
		return
	}
	s.log.Info("sync resumed by operator")
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"paused":       s.gate.IsPaused(c.Request.Context()),
		"breaker_open": s.pool.BreakerOpen(),
		"pool_in_use":  s.pool.InUse(),
	})
}
