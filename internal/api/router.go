package api

import (
	"github.com/gin-gonic/gin"

	"listimport/internal/middleware"
)

// Config carries the dependencies the router needs.
type Config struct {
	Server *Server
}

// NewRouter builds the gin engine with shared middleware applied.
func NewRouter(cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.CORS())
	cfg.Server.RegisterRoutes(router)
	return router
}
