// Package extract orchestrates the upload-and-extract pipeline against the
// remote conversion service: task metadata, slot acquisition, bounded
// uploads and progress polling.
package extract

import "time"

// State is a task's position in its lifecycle. States only move forward:
// waiting_file → uploading → running* → done|failed|aborted.
type State string

const (
	// Client-side states, before the server reports anything.
	StateWaitingFile State = "waiting_file"
	StateUploading   State = "uploading"

	// Server-reported states.
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
	StateAborted State = "aborted"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateAborted
}

// TaskRecord tracks one file through a single orchestration call. Records
// are owned by the call that created them and are never shared across
// concurrent calls.
type TaskRecord struct {
	// LocalID is the client-generated correlation id; the server echoes it
	// so slots can be matched back. ServerTaskID is assigned exactly once,
	// at slot-acquisition time.
	LocalID      string    `json:"local_id"`
	ServerTaskID string    `json:"server_task_id,omitempty"`
	FileName     string    `json:"file_name"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UploadURL    string    `json:"upload_url,omitempty"`
	FullMDLink   string    `json:"full_md_link,omitempty"`
	LayoutURL    string    `json:"layout_url,omitempty"`
	ErrMsg       string    `json:"err_msg,omitempty"`
}

// Options control one orchestration call.
type Options struct {
	EnableFormula bool
	EnableTable   bool
	Language      string

	// PageRanges, when non-nil, holds the requested page numbers per file,
	// aligned with the descriptor slice. Entries may be nil.
	PageRanges [][]int

	// OnTaskProgress receives conversion progress for a file still running
	// on the server.
	OnTaskProgress func(fileName string, percent int)

	// OnUploadProgress receives byte-level upload progress per file name.
	OnUploadProgress func(fileName string, sent, total int64)
}

// UploadOutcome is the result of UploadFiles: the server batch id and the
// task records with server ids and upload URLs populated.
type UploadOutcome struct {
	BatchID string        `json:"batch_id"`
	Tasks   []*TaskRecord `json:"tasks"`
}

// FileResult is one file's terminal outcome in a Summary.
type FileResult struct {
	FileName   string `json:"file_name"`
	State      State  `json:"state"`
	FullMDLink string `json:"full_md_link,omitempty"`
	LayoutURL  string `json:"layout_url,omitempty"`
	ErrMsg     string `json:"err_msg,omitempty"`
}

// Summary is the result of UploadAndExtract. Total counts the records the
// poller actually returned; files still pending at the deadline appear in
// neither the counts nor Results.
type Summary struct {
	Total        int          `json:"total"`
	SuccessCount int          `json:"success_count"`
	FailedCount  int          `json:"failed_count"`
	Results      []FileResult `json:"results"`
}
