package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"listimport/internal/mapping"
	"listimport/internal/template"
)

type saveTemplateRequest struct {
	Name    string                `json:"name"`
	Mapping mapping.ColumnMapping `json:"mapping"`
}

func (s *Server) handleSaveTemplate(c *gin.Context) {
	var req saveTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tpl, err := s.Templates.Save(req.Name, req.Mapping)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"template": tpl})
}

func (s *Server) handleLoadTemplate(c *gin.Context) {
	tpl, err := s.Templates.Load(c.Param("id"))
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "template_not_found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": tpl})
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	if err := s.Templates.Delete(c.Param("id")); err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "template_not_found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleListTemplates(c *gin.Context) {
	templates, err := s.Templates.List()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if templates == nil {
		templates = []template.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}
