package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthHandler handles GET /api/health with a bounded database ping.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	db := s.db.Health(ctx)
	if !db.Connected {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "database": db})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "database": db})
}
