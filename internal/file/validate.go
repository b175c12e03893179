package file

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TypeInfo describes one supported document type from the static catalog.
type TypeInfo struct {
	Type        string
	ContentType string
	MaxSize     int64
}

const mib = 1 << 20

// catalog maps a normalized extension to its type metadata. Size ceilings
// come from the conversion service's published limits.
var catalog = map[string]TypeInfo{
	"pdf":  {Type: "pdf", ContentType: "application/pdf", MaxSize: 100 * mib},
	"doc":  {Type: "doc", ContentType: "application/msword", MaxSize: 50 * mib},
	"docx": {Type: "docx", ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", MaxSize: 50 * mib},
	"ppt":  {Type: "ppt", ContentType: "application/vnd.ms-powerpoint", MaxSize: 50 * mib},
	"pptx": {Type: "pptx", ContentType: "application/vnd.openxmlformats-officedocument.presentationml.presentation", MaxSize: 50 * mib},
	"png":  {Type: "png", ContentType: "image/png", MaxSize: 20 * mib},
	"jpg":  {Type: "jpg", ContentType: "image/jpeg", MaxSize: 20 * mib},
	"jpeg": {Type: "jpg", ContentType: "image/jpeg", MaxSize: 20 * mib},
}

// ValidationError reports an input file rejected before any network call.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid file " + e.Name + ": " + e.Reason
}

// Validate checks a descriptor against the catalog and the allowed type set.
// It is a pure function: no I/O beyond the size already on the descriptor.
func Validate(d *Descriptor, allowed []string) (TypeInfo, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name), "."))
	if ext == "" {
		return TypeInfo{}, &ValidationError{Name: d.Name, Reason: "missing extension"}
	}
	info, ok := catalog[ext]
	if !ok {
		return TypeInfo{}, &ValidationError{Name: d.Name, Reason: "unsupported type ." + ext}
	}
	if len(allowed) > 0 && !typeAllowed(info.Type, allowed) {
		return TypeInfo{}, &ValidationError{Name: d.Name, Reason: "type ." + info.Type + " not enabled"}
	}
	if d.Size <= 0 {
		return TypeInfo{}, &ValidationError{Name: d.Name, Reason: "empty file"}
	}
	if d.Size > info.MaxSize {
		return TypeInfo{}, &ValidationError{
			Name:   d.Name,
			Reason: fmt.Sprintf("size %d exceeds limit %d for .%s", d.Size, info.MaxSize, info.Type),
		}
	}
	return info, nil
}

func typeAllowed(t string, allowed []string) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}
