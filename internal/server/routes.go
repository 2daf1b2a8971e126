package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).Round(time.Second).String(),
			"service": serviceName,
			"version": version,
			"cycles":  s.cycles.Total(),
		})
	})

	s.router.GET("/cycles/last", func(c *gin.Context) {
		last, ok := s.cycles.Last()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cycle yet"})
			return
		}
		c.JSON(http.StatusOK, last)
	})
}
