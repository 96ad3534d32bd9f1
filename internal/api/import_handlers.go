package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"listimport/internal/importer"
	"listimport/internal/mapping"
	"listimport/internal/queue"
)

const maxUploadBytes = 50 * 1024 * 1024

// handleSubmitImport accepts a multipart CSV/XLSX upload plus settings
// fields and starts the import job. Validation problems come back as a
// structured field list.
func (s *Server) handleSubmitImport(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	var format string
	switch ext {
	case ".csv":
		format = importer.FormatCSV
	case ".xlsx":
		format = importer.FormatXLSX
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported_file"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file_too_large"})
		return
	}

	var cm mapping.ColumnMapping
	if raw := c.PostForm("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cm); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_mapping"})
			return
		}
	}
	batchSize, _ := strconv.Atoi(c.PostForm("batch_size"))
	settings := importer.Settings{
		ListingType: c.PostForm("listing_type"),
		Category:    c.PostForm("category"),
		AuthorID:    c.PostForm("author_id"),
		BatchSize:   batchSize,
		Delimiter:   c.PostForm("delimiter"),
		TestMode:    c.PostForm("test_mode") == "true" || c.PostForm("test_mode") == "1",
		Mapping:     cm,
	}

	dstDir := s.UploadDir
	if dstDir == "" {
		dstDir = os.TempDir()
	}
	dstPath := filepath.Join(dstDir, "import-"+uuid.NewString()+ext)
	if err := c.SaveUploadedFile(fileHeader, dstPath); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "save_failed"})
		return
	}

	payload := map[string]any{"source": dstPath, "format": format}
	err = s.Scheduler.Submit(c.Request.Context(), s.importerID(), settings, payload)
	if err != nil {
		os.Remove(dstPath)
		var validation *importer.ValidationError
		switch {
		case errors.As(err, &validation):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"error":  "invalid_settings",
				"fields": validation.Fields,
			})
		case errors.Is(err, queue.ErrJobInProgress):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "import_in_progress"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"importer": s.importerID()})
}

// handleTick advances the job one bounded unit of work. The endpoint is
// idempotent when no task is pending; a stage failure halts the job and is
// reported in the response.
func (s *Server) handleTick(c *gin.Context) {
	tickErr := s.Scheduler.Tick(c.Request.Context(), s.importerID())
	inProgress, err := s.Scheduler.InProgress(c.Request.Context(), s.importerID())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	payload := gin.H{"in_progress": inProgress}
	if tickErr != nil {
		payload["error"] = tickErr.Error()
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))

	inProgress, err := s.Scheduler.InProgress(ctx, s.importerID())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	progress := s.Scheduler.Progress(s.importerID())
	stats, err := progress.Stats(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logs, err := progress.Logs(ctx, skip)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []queue.LogEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"in_progress": inProgress,
		"progress":    queue.Percent(stats, inProgress),
		"stats":       stats,
		"logs":        logs,
	})
}

func (s *Server) handleAbort(c *gin.Context) {
	if err := s.Scheduler.Abort(c.Request.Context(), s.importerID()); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "aborting"})
}
