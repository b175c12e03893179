// Package remote talks to the conversion service's control plane: batch
// upload-slot acquisition and per-task status queries. Retry policy belongs
// to callers; every operation here performs exactly one HTTP exchange.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mdbridge/internal/config"
)

const (
	slotBatchPath  = "/api/v4/file-urls/batch"
	taskStatusPath = "/api/v4/extract/task/"

	maxBodyBytes = 1 << 20
)

// SlotFile is one file's entry in a batch slot request. DataID is the
// client-generated correlation id the server echoes back so slots can be
// matched to local task records.
type SlotFile struct {
	Name       string `json:"name"`
	DataID     string `json:"data_id"`
	PageRanges string `json:"page_ranges,omitempty"`
}

// SlotRequest asks the batch endpoint for one upload slot per file.
type SlotRequest struct {
	EnableFormula bool       `json:"enable_formula"`
	EnableTable   bool       `json:"enable_table"`
	Language      string     `json:"language,omitempty"`
	Files         []SlotFile `json:"files"`
}

// SlotGrant is the server's answer: slot i (FileURLs[i], TaskIDs[i])
// belongs to request file i. ContentTypes, when present, pins the content
// type each pre-signed URL was signed for.
type SlotGrant struct {
	BatchID      string   `json:"batch_id"`
	FileURLs     []string `json:"file_urls"`
	TaskIDs      []string `json:"task_ids"`
	ContentTypes []string `json:"content_types,omitempty"`
}

// TaskStatus is one task's state as reported by the query endpoint.
type TaskStatus struct {
	TaskID         string `json:"task_id"`
	State          string `json:"state"`
	FullMDLink     string `json:"full_md_link,omitempty"`
	LayoutURL      string `json:"layout_url,omitempty"`
	ExtractedPages int    `json:"extracted_pages,omitempty"`
	TotalPages     int    `json:"total_pages,omitempty"`
	ErrMsg         string `json:"err_msg,omitempty"`
}

// envelope is the service's uniform response wrapper; code 0 means success.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client issues control-plane requests. Each call captures one configuration
// snapshot at its start and uses it throughout, so hot reloads never change
// a request already in flight.
type Client struct {
	store *config.Store
}

func NewClient(store *config.Store) *Client {
	return &Client{store: store}
}

// AcquireUploadSlots requests one upload slot per file from the batch
// endpoint. The grant is validated to carry exactly one URL and one task id
// per requested file.
func (c *Client) AcquireUploadSlots(ctx context.Context, req SlotRequest) (*SlotGrant, error) {
	const op = "acquire upload slots"
	snap := c.store.Current()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, snap.APIBase+slotBatchPath, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var grant SlotGrant
	if err := c.exchange(httpReq, snap, op, &grant); err != nil {
		return nil, err
	}
	if len(grant.FileURLs) != len(req.Files) || len(grant.TaskIDs) != len(req.Files) {
		return nil, &TransportError{Op: op, Err: fmt.Errorf(
			"slot count mismatch: requested %d, got %d urls / %d task ids",
			len(req.Files), len(grant.FileURLs), len(grant.TaskIDs))}
	}
	return &grant, nil
}

// QueryTaskStatus fetches one task's state from the query base address.
func (c *Client) QueryTaskStatus(ctx context.Context, serverTaskID string) (*TaskStatus, error) {
	const op = "query task status"
	snap := c.store.Current()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, snap.QueryBase+taskStatusPath+serverTaskID, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	var status TaskStatus
	if err := c.exchange(httpReq, snap, op, &status); err != nil {
		return nil, err
	}
	if status.TaskID == "" {
		status.TaskID = serverTaskID
	}
	return &status, nil
}

// exchange performs one request/response round trip and decodes the
// envelope's data into out.
func (c *Client) exchange(req *http.Request, snap *config.Snapshot, op string, out any) error {
	req.Header.Set("Authorization", "Bearer "+snap.Token)
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: snap.RequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Code != 0 {
		return &RemoteRejectedError{Op: op, Code: env.Code, Msg: env.Msg}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode payload: %w", err)}
	}
	return nil
}
