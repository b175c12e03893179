package job

import (
	"time"

	"mdbridge/internal/extract"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// FileEntry mirrors one file's observable progress inside a job.
type FileEntry struct {
	Name       string        `json:"name"`
	State      extract.State `json:"state"`
	Percent    int           `json:"percent"`
	FullMDLink string        `json:"full_md_link,omitempty"`
	LayoutURL  string        `json:"layout_url,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Job is one background extraction run. It outlives the HTTP request that
// created it and is what GET /jobs/:id reports on.
type Job struct {
	ID           string      `json:"id"`
	Status       Status      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	Files        []FileEntry `json:"files"`
	Total        int         `json:"total"`
	SuccessCount int         `json:"success_count"`
	FailedCount  int         `json:"failed_count"`
	Error        string      `json:"error,omitempty"`

	// TempDir holds the materialized upload bodies; removed when the job
	// finishes.
	TempDir string `json:"-"`
}

// Options configures the manager.
type Options struct {
	DataDir           string
	MaxConcurrentJobs int
}

const defaultMaxConcurrentJobs = 3
