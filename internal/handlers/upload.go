package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/product-importer/internal/models"
	"github.com/PratikDhanave/product-importer/internal/store"
)

// UploadConfig bounds the upload path.
type UploadConfig struct {
	Dir          string
	MaxBytes     int64
	PollInterval time.Duration
}

// RegisterUploadRoutes registers the intake and progress endpoints.
//
// POST /api/upload
// - multipart field "file", .csv only
// - stages the file, records a pending task, submits the import
// - 202 with the task id; processing happens on workers
//
// GET /api/upload/:task_id/status
// GET /api/upload/:task_id/progress (Server-Sent Events)
func RegisterUploadRoutes(r gin.IRoutes, cfg UploadConfig, tasks TaskStore, starter ImportStarter, log *logrus.Entry) {
	log = log.WithField("component", "upload")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	r.POST("/api/upload", func(c *gin.Context) {
		// multipart framing needs some room past the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBytes+1<<20)

		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, http.StatusRequestEntityTooLarge, "file too large", nil)
				return
			}
			respondError(c, http.StatusBadRequest, "multipart field \"file\" required", err)
			return
		}
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
			respondError(c, http.StatusBadRequest, "Only CSV files are allowed", nil)
			return
		}
		if fh.Size > cfg.MaxBytes {
			respondError(c, http.StatusRequestEntityTooLarge, "file too large", nil)
			return
		}

		taskID := uuid.NewString()
		filename := filepath.Base(fh.Filename)
		path := filepath.Join(cfg.Dir, taskID+".csv")
		tlog := log.WithFields(logrus.Fields{"task_id": taskID, "filename": filename})

		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			respondError(c, http.StatusInternalServerError, "staging failed", err)
			return
		}
		if err := c.SaveUploadedFile(fh, path); err != nil {
			respondError(c, http.StatusInternalServerError, "staging failed", err)
			return
		}

		ctx := c.Request.Context()
		if _, err := tasks.CreateTask(ctx, taskID, filename); err != nil {
			_ = os.Remove(path)
			respondError(c, http.StatusInternalServerError, "storage error", err)
			return
		}
		if err := starter.StartImport(ctx, taskID, path, filename); err != nil {
			tlog.WithError(err).Error("submit import")
			if ferr := tasks.FailTask(ctx, taskID, "could not submit import: "+err.Error()); ferr != nil {
				tlog.WithError(ferr).Error("record task failure")
			}
			_ = os.Remove(path)
			respondError(c, http.StatusServiceUnavailable, "could not start import", err)
			return
		}

		tlog.WithField("size", fh.Size).Info("upload accepted")
		c.JSON(http.StatusAccepted, models.UploadResponse{
			TaskID:   taskID,
			Filename: filename,
			Message:  "File uploaded successfully. Processing started.",
		})
	})

	r.GET("/api/upload/:task_id/status", func(c *gin.Context) {
		task, err := tasks.GetTask(c.Request.Context(), c.Param("task_id"))
		if err != nil {
			storeError(c, "Task not found", err)
			return
		}
		c.JSON(http.StatusOK, task)
	})

	r.GET("/api/upload/:task_id/progress", func(c *gin.Context) {
		id := c.Param("task_id")
		ctx := c.Request.Context()

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		c.Stream(func(_ io.Writer) bool {
			task, err := tasks.GetTask(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				c.SSEvent("progress", gin.H{"error": "Task not found"})
				return false
			}
			if err != nil {
				log.WithError(err).WithField("task_id", id).Warn("progress poll")
				c.SSEvent("progress", gin.H{"error": "storage error"})
				return false
			}
			c.SSEvent("progress", task.Snapshot())
			if task.Status.Terminal() {
				return false
			}
			select {
			case <-ctx.Done():
				return false
			case <-ticker.C:
				return true
			}
		})
	})
}
