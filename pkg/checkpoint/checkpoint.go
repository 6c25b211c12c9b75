// Package checkpoint derives batch completion state from the artifact directory.
//
// There is no separate checkpoint file: the output directory is the
// checkpoint. An artifact counts as complete only when its size reaches a
// minimum byte threshold, so files left empty or truncated by an interrupted
// run, and batches that produced no records, are fetched again.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/Sternrassler/catalog-crawler/pkg/artifact"
)

// DefaultMinBytes is the default validity threshold for an artifact.
const DefaultMinBytes int64 = 64

// Status is the derived state of one batch.
type Status string

const (
	// StatusPending means no artifact exists for the batch.
	StatusPending Status = "pending"

	// StatusComplete means a valid artifact exists and the batch is skipped.
	StatusComplete Status = "complete"

	// StatusInvalid means an artifact exists but is below the size threshold.
	StatusInvalid Status = "invalid"
)

// Snapshot is the result of one directory inspection.
type Snapshot struct {
	sizes    map[int]int64
	minBytes int64
}

// Inspect scans dir for batch artifacts. A missing directory yields an empty snapshot.
// Files whose names do not parse as artifacts are ignored.
func Inspect(dir string, minBytes int64) (*Snapshot, error) {
	snap := &Snapshot{sizes: make(map[int]int64), minBytes: minBytes}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snap, nil
		}
		return nil, fmt.Errorf("inspect output dir: %w", err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		index, ok := artifact.ParseName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		snap.sizes[index] = info.Size()
	}

	return snap, nil
}

// Status returns the derived status for a batch index.
func (s *Snapshot) Status(index int) Status {
	size, ok := s.sizes[index]
	switch {
	case !ok:
		return StatusPending
	case size >= s.minBytes:
		return StatusComplete
	default:
		return StatusInvalid
	}
}

// IsComplete reports whether the batch can be skipped.
func (s *Snapshot) IsComplete(index int) bool {
	return s.Status(index) == StatusComplete
}

// Completed returns the complete batch indices in ascending order.
func (s *Snapshot) Completed() []int {
	var out []int
	for index := range s.sizes {
		if s.IsComplete(index) {
			out = append(out, index)
		}
	}
	sort.Ints(out)
	return out
}

// Invalid returns the indices of artifacts below the threshold in ascending order.
func (s *Snapshot) Invalid() []int {
	var out []int
	for index := range s.sizes {
		if s.Status(index) == StatusInvalid {
			out = append(out, index)
		}
	}
	sort.Ints(out)
	return out
}

// Summary counts batch states for batches 1..total.
type Summary struct {
	Complete int
	Invalid  int
	Pending  int
}

// Summarize counts the status of every batch from 1 to total.
func (s *Snapshot) Summarize(total int) Summary {
	var sum Summary
	for index := 1; index <= total; index++ {
		switch s.Status(index) {
		case StatusComplete:
			sum.Complete++
		case StatusInvalid:
			sum.Invalid++
		default:
			sum.Pending++
		}
	}
	return sum
}
