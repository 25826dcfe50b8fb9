// Package api exposes the HTTP surface: enrichment submission and health.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/magpie-ai/magpie/pkg/agent"
	"github.com/magpie-ai/magpie/pkg/database"
)

// Server is the HTTP API server.
type Server struct {
	db     *database.Client
	engine *agent.Engine
	router *gin.Engine
	http   *http.Server
}

// NewServer creates the API server and registers all routes.
func NewServer(db *database.Client, engine *agent.Engine) *Server {
	s := &Server{db: db, engine: engine}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	api := router.Group("/api")
	api.POST("/enrich", s.enrichHandler)
	api.GET("/health", s.healthHandler)

	s.router = router
	return s
}

// Router returns the underlying gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks serving HTTP on addr until Shutdown or failure.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
