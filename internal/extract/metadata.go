package extract

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mdbridge/internal/file"
)

// buildTaskRecords creates one record per descriptor in input order. Each
// record gets a fresh collision-resistant local id so two concurrent
// orchestration calls can never cross-correlate.
func buildTaskRecords(files []*file.Descriptor) []*TaskRecord {
	now := time.Now()
	records := make([]*TaskRecord, 0, len(files))
	for _, d := range files {
		records = append(records, &TaskRecord{
			LocalID:   uuid.NewString(),
			FileName:  d.Name,
			State:     StateWaitingFile,
			CreatedAt: now,
		})
	}
	return records
}

// FormatPageRanges renders a set of page numbers as minimal comma-separated
// runs: {1,2,3,5,6,7} → "1-3,5-7". Duplicates are removed before run
// detection; empty input yields "".
func FormatPageRanges(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	sorted := make([]int, len(pages))
	copy(sorted, pages)
	sort.Ints(sorted)

	uniq := sorted[:1]
	for _, p := range sorted[1:] {
		if p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}

	var b strings.Builder
	start, prev := uniq[0], uniq[0]
	flush := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(start))
		if prev > start {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(prev))
		}
	}
	for _, p := range uniq[1:] {
		if p == prev+1 {
			prev = p
			continue
		}
		flush()
		start, prev = p, p
	}
	flush()
	return b.String()
}
