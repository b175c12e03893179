package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	fileutil "mdbridge/internal/file"
)

// JobStore abstracts persistence for job summaries. The default
// implementation is file-based; the interface allows plugging a DB-backed
// store later.
type JobStore interface {
	SaveJob(ctx context.Context, j *Job) error
	LoadJobs(ctx context.Context) ([]*Job, error)
}

// fileStore implements JobStore under dataDir/jobs/<id>/status.json.
type fileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) JobStore { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileStore{dataDir: dataDir}
}

func (s *fileStore) statusPath(jobID string) string {
	return filepath.Join(s.dataDir, "jobs", jobID, "status.json")
}

func (s *fileStore) SaveJob(ctx context.Context, j *Job) error { //nolint:revive // context reserved for future use
	return fileutil.WriteJSONAtomic(s.statusPath(j.ID), j) //nolint:wrapcheck
}

func (s *fileStore) LoadJobs(ctx context.Context) ([]*Job, error) { //nolint:revive // context reserved for future use
	root := filepath.Join(s.dataDir, "jobs")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	jobs := make([]*Job, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(s.statusPath(e.Name())) //nolint:gosec // path is controlled by application
		if err != nil {
			continue
		}
		var j Job
		if err := json.Unmarshal(b, &j); err != nil {
			continue
		}
		jj := j
		jobs = append(jobs, &jj)
	}
	return jobs, nil
}
