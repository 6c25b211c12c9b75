// Package artifact persists per-batch product records as JSON files.
//
// Each batch is written to <dir>/products_<index:04>.json. Writes go to a
// temporary file in the same directory which is synced and renamed into
// place, so a reader never observes a partially written artifact under the
// final name.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/Sternrassler/catalog-crawler/pkg/product"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	artifactsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_artifacts_written_total",
		Help: "Total number of batch artifacts written",
	})

	artifactBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_artifact_bytes_total",
		Help: "Total bytes written to batch artifacts",
	})
)

var namePattern = regexp.MustCompile(`^products_(\d+)\.json$`)

// Name returns the artifact file name for a batch index.
func Name(index int) string {
	return fmt.Sprintf("products_%04d.json", index)
}

// ParseName extracts the batch index from an artifact file name.
func ParseName(name string) (int, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil || index <= 0 {
		return 0, false
	}
	return index, true
}

// Writer writes batch artifacts into a directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the artifact path for a batch index.
func (w *Writer) Path(index int) string {
	return filepath.Join(w.dir, Name(index))
}

// Write serializes records as a JSON array and replaces the artifact for index.
// A nil slice is written as an empty array.
func (w *Writer) Write(index int, records []product.Record) error {
	if records == nil {
		records = []product.Record{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal batch %d: %w", index, err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	final := w.Path(index)
	if err := writeAtomic(w.dir, final, data); err != nil {
		return fmt.Errorf("write batch %d: %w", index, err)
	}

	artifactsWrittenTotal.Inc()
	artifactBytesTotal.Add(float64(len(data)))

	return nil
}

func writeAtomic(dir, final string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(final)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}

// ReadFile decodes the records stored in one artifact.
func ReadFile(path string) ([]product.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var records []product.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// List returns the artifact paths in dir ordered by batch index.
// Files whose names do not carry a batch index are skipped.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	type indexed struct {
		index int
		path  string
	}
	var found []indexed
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		index, ok := ParseName(e.Name())
		if !ok {
			continue
		}
		found = append(found, indexed{index: index, path: filepath.Join(dir, e.Name())})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}
