package job

import (
	"context"
	"fmt"
)

// LoadFromDisk restores persisted job summaries into memory. Jobs left
// queued or in_progress by a previous run cannot be resumed (their task
// records died with the process) and are marked failed.
func (m *Manager) LoadFromDisk() error {
	if m.store == nil {
		return nil
	}
	loaded, err := m.store.LoadJobs(context.Background())
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	for _, j := range loaded {
		if j.Status == StatusQueued || j.Status == StatusInProgress {
			j.Status = StatusFailed
			j.Error = "interrupted by restart"
			_ = m.store.SaveJob(context.Background(), j)
		}
		m.mu.Lock()
		m.jobs[j.ID] = j
		m.mu.Unlock()
	}
	return nil
}
