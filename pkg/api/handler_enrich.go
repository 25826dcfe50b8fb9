package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// enrichHandler handles POST /api/enrich: validate, run the agent, return
// the EnrichmentResult.
func (s *Server) enrichHandler(c *gin.Context) {
	var req EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": []string{err.Error()},
		})
		return
	}

	if details := req.Validate(); len(details) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"details": details,
		})
		return
	}

	result, err := s.engine.Enrich(c.Request.Context(), req.toAgentRequest())
	if err != nil {
		slog.Error("Enrichment failed", "query", req.Query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrichment failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}
