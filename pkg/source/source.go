// Package source reads identifier lists and partitions them into numbered batches.
package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Batch is a contiguous slice of identifiers addressed by a 1-based index.
type Batch struct {
	Index int
	IDs   []string
}

// ReadFile reads identifiers from a text file, one per line.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identifier file: %w", err)
	}
	defer f.Close()

	ids, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read identifier file %s: %w", path, err)
	}
	return ids, nil
}

// Read returns the trimmed, non-blank lines of r in order.
// Duplicates are kept.
func Read(r io.Reader) ([]string, error) {
	var ids []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// Partition splits ids into batches of at most size identifiers.
// Batches share the backing array of ids and must not be mutated.
func Partition(ids []string, size int) []Batch {
	if size <= 0 {
		size = 1
	}

	batches := make([]Batch, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, Batch{
			Index: len(batches) + 1,
			IDs:   ids[start:end:end],
		})
	}
	return batches
}
