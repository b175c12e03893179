// Package upload pushes one file's raw bytes to one pre-signed storage URL.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"mdbridge/internal/file"
	"mdbridge/internal/remote"
)

const (
	// MaxFileSize is the hard per-file ceiling, checked before any network
	// call is made.
	MaxFileSize = 100 << 20

	fallbackContentType = "application/octet-stream"
	defaultPutTimeout   = 10 * time.Minute
)

// ErrFileTooLarge is reported by the pre-flight size check.
var ErrFileTooLarge = errors.New("file exceeds upload size limit")

// ProgressFunc receives incremental upload progress.
type ProgressFunc func(sent, total int64)

// Transport performs single-file PUT uploads. The zero value is usable.
type Transport struct {
	// Timeout bounds one whole PUT including the body. Uploads are not
	// covered by the poller deadline, so this is their only bound.
	Timeout time.Duration
}

// PutFile streams the descriptor's exact bytes to targetURL. The body is
// never transformed and the response body is never parsed; only the status
// code decides the outcome. serverContentType, when non-empty, wins over
// every local detection because the pre-signed URL validates against it.
func (t *Transport) PutFile(ctx context.Context, d *file.Descriptor, targetURL, serverContentType string, onProgress ProgressFunc) error {
	const op = "upload file"

	size := d.Size
	if size == 0 && len(d.Data) > 0 {
		size = int64(len(d.Data))
	}
	if size > MaxFileSize {
		return fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, d.Name, size)
	}

	src, err := d.Open()
	if err != nil {
		return &remote.TransportError{Op: op, Err: err}
	}
	defer src.Close()

	var body io.Reader = src
	if onProgress != nil {
		body = &progressReader{r: src, total: size, report: onProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, targetURL, body)
	if err != nil {
		return &remote.TransportError{Op: op, Err: err}
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", ResolveContentType(serverContentType, d))

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultPutTimeout
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return &remote.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &remote.TransportError{Op: op, Err: fmt.Errorf("storage returned status %d", resp.StatusCode)}
	}
	return nil
}

// ResolveContentType picks the content type for one upload slot. Priority,
// highest first: the server-declared type for this slot, the descriptor's
// declared type, the file extension, a content sniff for files with no
// usable extension, then the generic fallback.
func ResolveContentType(serverDeclared string, d *file.Descriptor) string {
	if ct := strings.TrimSpace(serverDeclared); ct != "" {
		return ct
	}
	if ct := strings.TrimSpace(d.ContentType); ct != "" {
		return ct
	}
	if ext := filepath.Ext(d.Name); ext != "" {
		if byExt := mime.TypeByExtension(strings.ToLower(ext)); byExt != "" {
			return byExt
		}
	}
	if d.Path != "" {
		if mt, err := mimetype.DetectFile(d.Path); err == nil {
			return mt.String()
		}
	} else if len(d.Data) > 0 {
		return mimetype.Detect(d.Data).String()
	}
	return fallbackContentType
}

// progressReader reports cumulative bytes read to the observer.
type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
