package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bosocmputer/statementpipeline/internal/job"
	"github.com/bosocmputer/statementpipeline/internal/store"
)

type handlers struct {
	controller *job.Controller
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "statement-pipeline",
	})
}

func (h *handlers) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open upload"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}

	result, err := h.controller.Submit(c.Request.Context(), fileHeader.Filename, content)
	if err != nil {
		if errors.Is(err, job.ErrInvalidUpload) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":    result.JobID,
		"status":    result.State,
		"duplicate": result.Duplicate,
	})
}

func (h *handlers) status(c *gin.Context) {
	id := c.Param("id")
	j, err := h.controller.Status(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id": j.ID,
		"status": j.State,
		"error":  j.Error,
	})
}

func (h *handlers) get(c *gin.Context) {
	id := c.Param("id")
	record, err := h.controller.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *handlers) list(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}

	jobs, total, err := h.controller.List(c.Request.Context(), skip, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": total,
		"skip":  skip,
		"limit": limit,
	})
}

func (h *handlers) delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.controller.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *handlers) exportCSV(c *gin.Context) {
	id := c.Param("id")
	record, err := h.controller.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if record.Job.State != store.StateCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job is not completed"})
		return
	}

	csv := BuildCSV(record)
	filename := CSVFilename(id, time.Now().Format("20060102"))

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", []byte(csv))
}

func (h *handlers) processingLog(c *gin.Context) {
	id := c.Param("id")
	record, err := h.controller.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": record.Logs})
}
