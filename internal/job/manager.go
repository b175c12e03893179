// Package job runs extraction batches in the background and keeps their
// observable state, in memory and as JSON on disk.
package job

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mdbridge/internal/extract"
	"mdbridge/internal/file"
)

// Extractor is the slice of the orchestrator the manager drives.
type Extractor interface {
	UploadAndExtract(ctx context.Context, files []*file.Descriptor, opts extract.Options) (*extract.Summary, error)
}

// Manager owns the job registry and the background workers. Worker
// concurrency is bounded by its own semaphore, independent of the per-batch
// upload concurrency inside the orchestrator.
type Manager struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	semaphore chan struct{}
	workersWG sync.WaitGroup
	baseCtx   context.Context
	store     JobStore
	extractor Extractor
}

func NewManager(extractor Extractor, opts Options) *Manager {
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	return &Manager{
		jobs:      make(map[string]*Job),
		semaphore: make(chan struct{}, opts.MaxConcurrentJobs),
		baseCtx:   context.Background(),
		store:     NewFileStore(opts.DataDir),
		extractor: extractor,
	}
}

// IsBusy reports whether the system is currently at max concurrent jobs.
func (m *Manager) IsBusy() bool {
	return len(m.semaphore) >= cap(m.semaphore)
}

// Enqueue registers a job for the given descriptors and starts a background
// worker for it. tempDir is removed when the job finishes. The returned Job
// is a detached copy; the live record advances in the background and is
// visible through Get and List.
func (m *Manager) Enqueue(files []*file.Descriptor, opts extract.Options, tempDir string) Job {
	entries := make([]FileEntry, 0, len(files))
	for _, d := range files {
		entries = append(entries, FileEntry{Name: d.Name, State: extract.StateWaitingFile})
	}
	newJob := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		Files:     entries,
		TempDir:   tempDir,
	}

	m.mu.Lock()
	m.jobs[newJob.ID] = newJob
	created := m.snapshotLocked(newJob)
	m.mu.Unlock()
	m.persist(newJob)

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.run(newJob, files, opts)
	}()
	return created
}

// Get returns a copy of a job by id.
func (m *Manager) Get(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if j, ok := m.jobs[jobID]; ok {
		return m.snapshotLocked(j), true
	}
	return Job{}, false
}

// List returns copies of all known jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, m.snapshotLocked(j))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// SetBaseContext sets the context under which workers run. Intended to be
// set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// WaitAll blocks until all in-flight workers finish or the context is done.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) run(j *Job, files []*file.Descriptor, opts extract.Options) {
	m.semaphore <- struct{}{}
	defer func() { <-m.semaphore }()
	defer m.cleanup(j)

	m.mu.Lock()
	j.Status = StatusInProgress
	ctx := m.baseCtx
	m.mu.Unlock()
	m.persist(j)

	opts.OnUploadProgress = func(name string, sent, total int64) {
		m.updateFile(j, name, func(e *FileEntry) {
			e.State = extract.StateUploading
			if total > 0 {
				e.Percent = int(sent * 100 / total)
			}
		})
	}
	opts.OnTaskProgress = func(name string, percent int) {
		m.updateFile(j, name, func(e *FileEntry) {
			e.State = extract.StateRunning
			e.Percent = percent
		})
	}

	summary, err := m.extractor.UploadAndExtract(ctx, files, opts)
	if err != nil {
		m.fail(j, err.Error())
		return
	}

	m.mu.Lock()
	for _, res := range summary.Results {
		for i := range j.Files {
			if j.Files[i].Name != res.FileName || j.Files[i].State.Terminal() {
				continue
			}
			j.Files[i].State = res.State
			j.Files[i].FullMDLink = res.FullMDLink
			j.Files[i].LayoutURL = res.LayoutURL
			j.Files[i].Error = res.ErrMsg
			if res.State == extract.StateDone {
				j.Files[i].Percent = 100
			}
			break
		}
	}
	j.Total = summary.Total
	j.SuccessCount = summary.SuccessCount
	j.FailedCount = summary.FailedCount
	j.Status = StatusDone
	m.mu.Unlock()
	m.persist(j)
}

func (m *Manager) fail(j *Job, msg string) {
	m.mu.Lock()
	j.Status = StatusFailed
	j.Error = msg
	for i := range j.Files {
		if !j.Files[i].State.Terminal() {
			j.Files[i].State = extract.StateFailed
			if j.Files[i].Error == "" {
				j.Files[i].Error = msg
			}
		}
	}
	m.mu.Unlock()
	m.persist(j)
}

func (m *Manager) updateFile(j *Job, name string, apply func(*FileEntry)) {
	m.mu.Lock()
	for i := range j.Files {
		if j.Files[i].Name == name {
			apply(&j.Files[i])
			break
		}
	}
	m.mu.Unlock()
}

func (m *Manager) cleanup(j *Job) {
	if j.TempDir == "" {
		return
	}
	if err := os.RemoveAll(j.TempDir); err != nil {
		log.Warn().Str("job_id", j.ID).Str("dir", j.TempDir).Err(err).Msg("temp dir cleanup failed")
	}
}

func (m *Manager) persist(j *Job) {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	snapshot := m.snapshotLocked(j)
	m.mu.RUnlock()
	if err := m.store.SaveJob(context.Background(), &snapshot); err != nil { // best-effort
		log.Warn().Str("job_id", j.ID).Err(err).Msg("persist job failed")
	}
}

func (m *Manager) snapshotLocked(j *Job) Job {
	out := *j
	out.Files = make([]FileEntry, len(j.Files))
	copy(out.Files, j.Files)
	return out
}
