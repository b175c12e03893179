package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mdbridge/internal/extract"
	"mdbridge/internal/file"
	"mdbridge/internal/job"
)

const maxFilesPerRequest = 20

type enqueueResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}

type jobResponse struct {
	ID           string          `json:"id"`
	Status       job.Status      `json:"status"`
	CreatedAt    string          `json:"created_at"`
	Files        []job.FileEntry `json:"files"`
	Total        int             `json:"total"`
	SuccessCount int             `json:"success_count"`
	FailedCount  int             `json:"failed_count"`
	Error        string          `json:"error,omitempty"`
}

type API struct {
	jobs         *job.Manager
	allowedTypes []string
	tmpDir       string
}

func NewAPI(jobs *job.Manager, allowedTypes []string, dataDir string) *API {
	return &API{
		jobs:         jobs,
		allowedTypes: allowedTypes,
		tmpDir:       filepath.Join(dataDir, "tmp"),
	}
}

// RegisterRoutes registers API routes on the provided gin engine.
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := router.Group("/api/v1")
	{
		api.POST("/extract", a.Enqueue)
		api.GET("/jobs", a.ListJobs)
		api.GET("/jobs/:id", a.GetJob)
	}
}

// Enqueue accepts a multipart batch, validates and materializes every file,
// and hands the batch to a background extraction job. Conversion happens
// asynchronously; the response carries the job id to poll.
func (a *API) Enqueue(c *gin.Context) {
	if a.jobs.IsBusy() {
		log.Warn().Msg("rejecting extract request: all job slots busy")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		log.Warn().Err(err).Msg("invalid multipart request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart request"})
		return
	}
	parts := form.File["files"]
	if len(parts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}
	if len(parts) > maxFilesPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many files"})
		return
	}

	opts, err := a.parseOptions(c, len(parts))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tempDir := filepath.Join(a.tmpDir, uuid.NewString())
	enqueued := false
	defer func() {
		if !enqueued {
			_ = os.RemoveAll(tempDir)
		}
	}()

	descriptors := make([]*file.Descriptor, 0, len(parts))
	for _, part := range parts {
		desc := &file.Descriptor{Name: filepath.Base(part.Filename), Size: part.Size}
		info, err := file.Validate(desc, a.allowedTypes)
		if err != nil {
			log.Warn().Str("file", desc.Name).Err(err).Msg("file rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		desc.ContentType = info.ContentType

		src, err := part.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file " + desc.Name})
			return
		}
		path, err := file.Materialize(tempDir, desc.Name, src)
		_ = src.Close()
		if err != nil {
			log.Error().Str("file", desc.Name).Err(err).Msg("materialize failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
			return
		}
		desc.Path = path
		descriptors = append(descriptors, desc)
	}

	created := a.jobs.Enqueue(descriptors, opts, tempDir)
	enqueued = true
	log.Info().Str("job_id", created.ID).Int("files", len(descriptors)).Msg("extraction job enqueued")
	c.JSON(http.StatusAccepted, enqueueResponse{JobID: created.ID, Status: created.Status})
}

// GetJob returns one job's status.
func (a *API) GetJob(c *gin.Context) {
	id := c.Param("id")
	if found, ok := a.jobs.Get(id); ok {
		c.JSON(http.StatusOK, toJobResponse(found))
		return
	}
	log.Warn().Str("job_id", id).Msg("job not found")
	c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
}

// ListJobs returns all known jobs, newest first.
func (a *API) ListJobs(c *gin.Context) {
	all := a.jobs.List()
	out := make([]jobResponse, 0, len(all))
	for _, j := range all {
		out = append(out, toJobResponse(j))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// parseOptions reads the non-file form fields. page_ranges is a JSON object
// mapping file name to the page numbers wanted from it.
func (a *API) parseOptions(c *gin.Context, fileCount int) (extract.Options, error) {
	opts := extract.Options{
		EnableFormula: c.PostForm("enable_formula") != "false",
		EnableTable:   c.PostForm("enable_table") != "false",
		Language:      c.PostForm("language"),
		PageRanges:    make([][]int, fileCount),
	}
	raw := c.PostForm("page_ranges")
	if raw == "" {
		return opts, nil
	}
	byName := map[string][]int{}
	if err := json.Unmarshal([]byte(raw), &byName); err != nil {
		return opts, errors.New("invalid page_ranges: expected JSON object of file name to page list")
	}
	form, _ := c.MultipartForm()
	for i, part := range form.File["files"] {
		if pages, ok := byName[filepath.Base(part.Filename)]; ok {
			opts.PageRanges[i] = pages
		}
	}
	return opts, nil
}

func toJobResponse(j job.Job) jobResponse {
	return jobResponse{
		ID:           j.ID,
		Status:       j.Status,
		CreatedAt:    j.CreatedAt.UTC().Format(time.RFC3339),
		Files:        j.Files,
		Total:        j.Total,
		SuccessCount: j.SuccessCount,
		FailedCount:  j.FailedCount,
		Error:        j.Error,
	}
}
