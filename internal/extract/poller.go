package extract

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mdbridge/internal/remote"
)

// StatusQuerier is the slice of the control-plane client the poller needs.
type StatusQuerier interface {
	QueryTaskStatus(ctx context.Context, serverTaskID string) (*remote.TaskStatus, error)
}

type pollOptions struct {
	interval   time.Duration
	maxWait    time.Duration
	onProgress func(serverTaskID string, percent int)
}

// waitForCompletion polls every id in the working set each round,
// concurrently, until all reach a terminal state or maxWait elapses. A
// failed query is logged and retried next round, never treated as terminal.
// On deadline the collected terminal records are returned as-is: fewer
// records than ids means the rest were still pending, and no record is
// fabricated for them.
func waitForCompletion(ctx context.Context, q StatusQuerier, serverTaskIDs []string, opts pollOptions) []*remote.TaskStatus {
	working := make([]string, len(serverTaskIDs))
	copy(working, serverTaskIDs)

	terminal := make([]*remote.TaskStatus, 0, len(serverTaskIDs))
	start := time.Now()

	for len(working) > 0 && ctx.Err() == nil {
		statuses := queryRound(ctx, q, working)

		remaining := working[:0]
		for _, id := range working {
			status, ok := statuses[id]
			if !ok {
				remaining = append(remaining, id)
				continue
			}
			switch State(status.State) {
			case StateDone, StateFailed, StateAborted:
				terminal = append(terminal, status)
			case StateRunning:
				if opts.onProgress != nil {
					opts.onProgress(id, completionPercent(status))
				}
				remaining = append(remaining, id)
			default:
				// Queued or converting on the server side; still pending.
				remaining = append(remaining, id)
			}
		}
		working = remaining

		if len(working) == 0 || time.Since(start) >= opts.maxWait {
			break
		}
		select {
		case <-time.After(opts.interval):
		case <-ctx.Done():
		}
	}

	if len(working) > 0 {
		log.Warn().
			Int("pending", len(working)).
			Int("terminal", len(terminal)).
			Dur("elapsed", time.Since(start)).
			Msg("polling stopped with tasks still pending")
	}
	return terminal
}

// queryRound fetches status for every id concurrently. Individual failures
// are logged and simply omitted from the result map.
func queryRound(ctx context.Context, q StatusQuerier, ids []string) map[string]*remote.TaskStatus {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses = make(map[string]*remote.TaskStatus, len(ids))
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, err := q.QueryTaskStatus(ctx, id)
			if err != nil {
				log.Warn().Str("task_id", id).Err(err).Msg("status query failed; will retry next round")
				return
			}
			mu.Lock()
			statuses[id] = status
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return statuses
}

func completionPercent(s *remote.TaskStatus) int {
	if s.TotalPages <= 0 {
		return 0
	}
	return s.ExtractedPages * 100 / s.TotalPages
}
