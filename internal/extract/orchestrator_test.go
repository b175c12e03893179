package extract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mdbridge/internal/config"
	"mdbridge/internal/file"
	"mdbridge/internal/remote"
	"mdbridge/internal/upload"
)

func newTestOrchestrator(t *testing.T, maxUploads int) (*Orchestrator, *fakeControlPlane, *fakeTransport) {
	t.Helper()
	cfg := config.Default()
	cfg.Token = "test-token"
	cfg.MaxConcurrentUploads = maxUploads
	store, err := config.NewStore(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	o := New(store)
	cp := &fakeControlPlane{scriptedQuerier: newScriptedQuerier()}
	tr := &fakeTransport{}
	o.UseControlPlane(cp)
	o.UseTransport(tr)
	return o, cp, tr
}

type fakeControlPlane struct {
	*scriptedQuerier
	mu       sync.Mutex
	slotReq  remote.SlotRequest
	grant    *remote.SlotGrant
	slotErr  error
	acquired int
}

func (f *fakeControlPlane) AcquireUploadSlots(_ context.Context, req remote.SlotRequest) (*remote.SlotGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotReq = req
	f.acquired++
	if f.slotErr != nil {
		return nil, f.slotErr
	}
	if f.grant != nil {
		return f.grant, nil
	}
	grant := &remote.SlotGrant{BatchID: "batch-1"}
	for i := range req.Files {
		grant.FileURLs = append(grant.FileURLs, "https://store/slot-"+req.Files[i].Name)
		grant.TaskIDs = append(grant.TaskIDs, "srv-"+req.Files[i].Name)
	}
	return grant, nil
}

type fakeTransport struct {
	mu          sync.Mutex
	calls       []string
	running     int
	peak        int
	starts      []string
	startTimes  []time.Time
	finishTimes []time.Time
	completed   int
	delays      map[string]time.Duration
	errs        map[string]error
}

func (f *fakeTransport) PutFile(_ context.Context, d *file.Descriptor, _, _ string, _ upload.ProgressFunc) error {
	f.mu.Lock()
	f.calls = append(f.calls, d.Name)
	f.starts = append(f.starts, d.Name)
	f.startTimes = append(f.startTimes, time.Now())
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	delay := f.delays[d.Name]
	err := f.errs[d.Name]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.running--
	f.completed++
	f.finishTimes = append(f.finishTimes, time.Now())
	f.mu.Unlock()
	return err
}

func descriptors(names ...string) []*file.Descriptor {
	out := make([]*file.Descriptor, 0, len(names))
	for _, n := range names {
		out = append(out, &file.Descriptor{Name: n, Data: []byte("x"), Size: 1})
	}
	return out
}

func TestUploadFilesMergesServerAssignments(t *testing.T) {
	o, cp, _ := newTestOrchestrator(t, 6)

	outcome, err := o.UploadFiles(context.Background(), descriptors("a.pdf", "b.pdf", "c.pdf"), Options{
		PageRanges: [][]int{{1, 2, 3}, nil, {5, 7}},
	})
	if err != nil {
		t.Fatalf("upload files: %v", err)
	}
	if outcome.BatchID != "batch-1" || len(outcome.Tasks) != 3 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	seenLocal := map[string]struct{}{}
	seenServer := map[string]struct{}{}
	for i, rec := range outcome.Tasks {
		if rec.ServerTaskID == "" || rec.UploadURL == "" {
			t.Fatalf("record %d missing server assignment: %+v", i, rec)
		}
		if _, dup := seenLocal[rec.LocalID]; dup {
			t.Fatalf("duplicate local id %q", rec.LocalID)
		}
		if _, dup := seenServer[rec.ServerTaskID]; dup {
			t.Fatalf("duplicate server id %q", rec.ServerTaskID)
		}
		seenLocal[rec.LocalID] = struct{}{}
		seenServer[rec.ServerTaskID] = struct{}{}
	}

	// server ids follow the server's declared order
	if outcome.Tasks[0].ServerTaskID != "srv-a.pdf" || outcome.Tasks[2].ServerTaskID != "srv-c.pdf" {
		t.Fatalf("server id order broken: %+v", outcome.Tasks)
	}

	// the slot request carried the same correlation ids and formatted ranges
	cp.mu.Lock()
	req := cp.slotReq
	cp.mu.Unlock()
	if req.Files[0].DataID != outcome.Tasks[0].LocalID {
		t.Fatal("slot request correlation id differs from task record")
	}
	if req.Files[0].PageRanges != "1-3" || req.Files[1].PageRanges != "" || req.Files[2].PageRanges != "5,7" {
		t.Fatalf("page ranges not formatted: %+v", req.Files)
	}
}

func TestSlotAcquisitionFailureSkipsUploads(t *testing.T) {
	o, cp, tr := newTestOrchestrator(t, 6)
	cp.slotErr = &remote.RemoteRejectedError{Op: "acquire upload slots", Code: -1, Msg: "denied"}

	_, err := o.UploadFiles(context.Background(), descriptors("a.pdf"), Options{})

	var rejected *remote.RemoteRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RemoteRejectedError, got %v", err)
	}
	tr.mu.Lock()
	calls := len(tr.calls)
	tr.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected zero upload attempts, got %d", calls)
	}
}

func TestUploadFailureDoesNotCancelSiblings(t *testing.T) {
	o, _, tr := newTestOrchestrator(t, 6)
	tr.errs = map[string]error{"b.pdf": &remote.TransportError{Op: "upload file", Err: errors.New("reset")}}
	tr.delays = map[string]time.Duration{"c.pdf": 50 * time.Millisecond}

	_, err := o.UploadFiles(context.Background(), descriptors("a.pdf", "b.pdf", "c.pdf"), Options{})
	if err == nil {
		t.Fatal("expected upload failure to fail the call")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.completed != 3 {
		t.Fatalf("siblings must run to completion, %d of 3 finished", tr.completed)
	}
}

func TestUploadConcurrencyBound(t *testing.T) {
	o, _, tr := newTestOrchestrator(t, 2)
	tr.delays = map[string]time.Duration{
		"f1.pdf": 20 * time.Millisecond,
		"f2.pdf": 80 * time.Millisecond,
		"f3.pdf": 20 * time.Millisecond,
	}

	if _, err := o.UploadFiles(context.Background(), descriptors("f1.pdf", "f2.pdf", "f3.pdf"), Options{}); err != nil {
		t.Fatalf("upload files: %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.peak > 2 {
		t.Fatalf("concurrency peak %d exceeded limit 2", tr.peak)
	}
	if len(tr.starts) != 3 {
		t.Fatalf("expected 3 uploads, got %d", len(tr.starts))
	}
	// the third admission can only happen after one of the first two
	// uploads completed
	if tr.startTimes[2].Before(tr.finishTimes[0]) {
		t.Fatalf("third upload started at %v before first completion at %v", tr.startTimes[2], tr.finishTimes[0])
	}
}

func TestUploadAndExtractCountsTerminalStates(t *testing.T) {
	o, cp, _ := newTestOrchestrator(t, 6)
	cp.add("srv-a.pdf", step("srv-a.pdf", "done", 2, 2))
	cp.add("srv-b.pdf", step("srv-b.pdf", "failed", 0, 0))
	cp.add("srv-c.pdf", step("srv-c.pdf", "aborted", 0, 0))

	summary, err := o.UploadAndExtract(context.Background(), descriptors("a.pdf", "b.pdf", "c.pdf"), Options{})
	if err != nil {
		t.Fatalf("upload and extract: %v", err)
	}
	if summary.Total != 3 || summary.SuccessCount != 1 || summary.FailedCount != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for _, res := range summary.Results {
		if !res.State.Terminal() {
			t.Fatalf("non-terminal result: %+v", res)
		}
	}
}

func TestUploadAndExtractIgnoresUnknownTaskIDs(t *testing.T) {
	o, cp, _ := newTestOrchestrator(t, 6)
	// the query for a.pdf answers with a body naming a task never submitted
	cp.add("srv-a.pdf", queryStep{status: &remote.TaskStatus{TaskID: "srv-ghost", State: "done"}})
	cp.add("srv-b.pdf", step("srv-b.pdf", "done", 1, 1))

	summary, err := o.UploadAndExtract(context.Background(), descriptors("a.pdf", "b.pdf"), Options{})
	if err != nil {
		t.Fatalf("upload and extract: %v", err)
	}
	if summary.Total != len(summary.Results) {
		t.Fatalf("total %d diverges from results %d", summary.Total, len(summary.Results))
	}
	if summary.Total != 1 || summary.SuccessCount != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Results[0].FileName != "b.pdf" {
		t.Fatalf("unexpected result: %+v", summary.Results[0])
	}
}

func TestUploadAndExtractMapsResultLinks(t *testing.T) {
	o, cp, _ := newTestOrchestrator(t, 6)
	cp.add("srv-a.pdf", queryStep{status: &remote.TaskStatus{
		TaskID:     "srv-a.pdf",
		State:      "done",
		FullMDLink: "https://results/a.md",
		LayoutURL:  "https://results/a.layout.json",
	}})

	summary, err := o.UploadAndExtract(context.Background(), descriptors("a.pdf"), Options{})
	if err != nil {
		t.Fatalf("upload and extract: %v", err)
	}
	if len(summary.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(summary.Results))
	}
	res := summary.Results[0]
	if res.FileName != "a.pdf" || res.FullMDLink != "https://results/a.md" || res.LayoutURL != "https://results/a.layout.json" {
		t.Fatalf("links not mapped: %+v", res)
	}
}

func TestUploadFilesRejectsEmptyInput(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, 6)
	if _, err := o.UploadFiles(context.Background(), nil, Options{}); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}
}
