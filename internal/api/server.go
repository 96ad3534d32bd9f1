package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"listimport/internal/auth"
	"listimport/internal/importer"
	"listimport/internal/middleware"
	"listimport/internal/queue"
	"listimport/internal/template"
)

// Server wires handlers to the scheduler, template store and session
// manager.
type Server struct {
	Database   *sql.DB
	Scheduler  *queue.Scheduler
	Templates  template.Store
	Sessions   *auth.Manager
	UploadDir  string
	ImporterID string
}

// RegisterRoutes attaches handlers to the gin engine.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.POST("/auth/login", s.handleLogin)

	secured := router.Group("/api/v1")
	secured.Use(middleware.RequireSession(s.Sessions))
	{
		secured.POST("/imports", s.handleSubmitImport)
		secured.POST("/imports/tick", s.handleTick)
		secured.GET("/imports/status", s.handleStatus)
		secured.POST("/imports/abort", s.handleAbort)

		secured.GET("/templates", s.handleListTemplates)
		secured.POST("/templates", s.handleSaveTemplate)
		secured.GET("/templates/:id", s.handleLoadTemplate)
		secured.DELETE("/templates/:id", s.handleDeleteTemplate)
	}
}

func (s *Server) importerID() string {
	if s.ImporterID != "" {
		return s.ImporterID
	}
	return importer.DirectoryImporterID
}

func (s *Server) handleHealth(c *gin.Context) {
	payload := gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if s.Database != nil {
		if err := s.Database.PingContext(c.Request.Context()); err != nil {
			payload["database"] = gin.H{"status": "unavailable", "error": err.Error()}
		} else {
			payload["database"] = gin.H{"status": "ok"}
		}
	}
	c.JSON(http.StatusOK, payload)
}

type loginRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	session, err := s.Sessions.Login(req.Token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": session.Token, "expires_at": session.ExpiresAt})
}
