package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"mdbridge/internal/config"
	"mdbridge/internal/file"
	"mdbridge/internal/limiter"
	"mdbridge/internal/remote"
	"mdbridge/internal/upload"
)

// ErrNoFiles is returned when an orchestration call receives no input.
var ErrNoFiles = errors.New("no files provided")

// ControlPlane is the slice of the remote client the orchestrator uses.
type ControlPlane interface {
	AcquireUploadSlots(ctx context.Context, req remote.SlotRequest) (*remote.SlotGrant, error)
	StatusQuerier
}

// FileUploader pushes one file to one pre-signed URL.
type FileUploader interface {
	PutFile(ctx context.Context, d *file.Descriptor, targetURL, serverContentType string, onProgress upload.ProgressFunc) error
}

// Orchestrator composes slot acquisition, bounded uploads and polling into
// the two public pipeline operations.
type Orchestrator struct {
	store     *config.Store
	control   ControlPlane
	transport FileUploader
}

func New(store *config.Store) *Orchestrator {
	return &Orchestrator{
		store:     store,
		control:   remote.NewClient(store),
		transport: &upload.Transport{},
	}
}

// UseControlPlane allows tests to inject a fake control-plane client.
// Intended for test setup only.
func (o *Orchestrator) UseControlPlane(cp ControlPlane) { o.control = cp }

// UseTransport allows tests to inject a fake upload transport.
// Intended for test setup only.
func (o *Orchestrator) UseTransport(t FileUploader) { o.transport = t }

// UploadFiles builds task metadata, acquires one slot per file, merges the
// server-assigned ids and URLs into the records, then runs every upload
// through the concurrency limiter and waits for all of them. A failed
// upload fails the whole call, but siblings already admitted are allowed to
// finish; nothing is cancelled.
func (o *Orchestrator) UploadFiles(ctx context.Context, files []*file.Descriptor, opts Options) (*UploadOutcome, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	snap := o.store.Current()
	records := buildTaskRecords(files)

	slotReq := remote.SlotRequest{
		EnableFormula: opts.EnableFormula,
		EnableTable:   opts.EnableTable,
		Language:      opts.Language,
		Files:         make([]remote.SlotFile, 0, len(files)),
	}
	for i, rec := range records {
		sf := remote.SlotFile{Name: rec.FileName, DataID: rec.LocalID}
		if i < len(opts.PageRanges) {
			sf.PageRanges = FormatPageRanges(opts.PageRanges[i])
		}
		slotReq.Files = append(slotReq.Files, sf)
	}

	grant, err := o.control.AcquireUploadSlots(ctx, slotReq)
	if err != nil {
		return nil, fmt.Errorf("acquire slots: %w", err)
	}
	for i, rec := range records {
		rec.ServerTaskID = grant.TaskIDs[i]
		rec.UploadURL = grant.FileURLs[i]
	}
	log.Info().
		Str("batch_id", grant.BatchID).
		Int("files", len(files)).
		Msg("upload slots acquired")

	lim := limiter.New(snap.MaxConcurrentUploads)
	var (
		wg        sync.WaitGroup
		errMu     sync.Mutex
		uploadErr error
	)
	for i := range files {
		wg.Add(1)
		go func(d *file.Descriptor, rec *TaskRecord, serverCT string) {
			defer wg.Done()
			err := lim.Do(ctx, func() error {
				rec.State = StateUploading
				var progress upload.ProgressFunc
				if opts.OnUploadProgress != nil {
					progress = func(sent, total int64) { opts.OnUploadProgress(d.Name, sent, total) }
				}
				return o.transport.PutFile(ctx, d, rec.UploadURL, serverCT, progress)
			})
			if err != nil {
				rec.ErrMsg = err.Error()
				log.Warn().Str("file", d.Name).Str("task_id", rec.ServerTaskID).Err(err).Msg("upload failed")
				errMu.Lock()
				if uploadErr == nil {
					uploadErr = fmt.Errorf("upload %s: %w", d.Name, err)
				}
				errMu.Unlock()
			}
		}(files[i], records[i], serverContentType(grant, i))
	}
	wg.Wait()
	if uploadErr != nil {
		return nil, uploadErr
	}

	return &UploadOutcome{BatchID: grant.BatchID, Tasks: records}, nil
}

// UploadAndExtract runs UploadFiles, polls every task to a terminal state
// or the configured deadline, and maps the terminal records to per-file
// results. Total counts the records mapped to submitted files, so a count
// lower than the number of submitted files means the rest were still
// pending at the deadline.
func (o *Orchestrator) UploadAndExtract(ctx context.Context, files []*file.Descriptor, opts Options) (*Summary, error) {
	snap := o.store.Current()

	outcome, err := o.UploadFiles(ctx, files, opts)
	if err != nil {
		return nil, err
	}

	byServerID := make(map[string]*TaskRecord, len(outcome.Tasks))
	ids := make([]string, 0, len(outcome.Tasks))
	for _, rec := range outcome.Tasks {
		byServerID[rec.ServerTaskID] = rec
		ids = append(ids, rec.ServerTaskID)
	}

	var onProgress func(serverTaskID string, percent int)
	if opts.OnTaskProgress != nil {
		onProgress = func(serverTaskID string, percent int) {
			if rec := byServerID[serverTaskID]; rec != nil {
				opts.OnTaskProgress(rec.FileName, percent)
			}
		}
	}
	statuses := waitForCompletion(ctx, o.control, ids, pollOptions{
		interval:   snap.PollInterval,
		maxWait:    snap.MaxWait,
		onProgress: onProgress,
	})

	summary := &Summary{Results: make([]FileResult, 0, len(statuses))}
	for _, status := range statuses {
		rec := byServerID[status.TaskID]
		if rec == nil {
			log.Warn().Str("task_id", status.TaskID).Msg("status for unknown task ignored")
			continue
		}
		summary.Total++
		state := State(status.State)
		rec.State = state
		rec.FullMDLink = status.FullMDLink
		rec.LayoutURL = status.LayoutURL
		rec.ErrMsg = status.ErrMsg

		switch state {
		case StateDone:
			summary.SuccessCount++
		case StateFailed, StateAborted:
			summary.FailedCount++
		}
		summary.Results = append(summary.Results, FileResult{
			FileName:   rec.FileName,
			State:      state,
			FullMDLink: status.FullMDLink,
			LayoutURL:  status.LayoutURL,
			ErrMsg:     status.ErrMsg,
		})
	}
	log.Info().
		Str("batch_id", outcome.BatchID).
		Int("total", summary.Total).
		Int("success", summary.SuccessCount).
		Int("failed", summary.FailedCount).
		Msg("extraction batch finished")
	return summary, nil
}

func serverContentType(grant *remote.SlotGrant, i int) string {
	if i < len(grant.ContentTypes) {
		return grant.ContentTypes[i]
	}
	return ""
}
