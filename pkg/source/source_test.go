package source

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	input := "1001\n\n  1002  \n\t\n1001\r\n1003"

	ids, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := []string{"1001", "1002", "1001", "1003"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Read() = %v, want %v", ids, want)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ReadFile() returned %d ids, want 2", len(ids))
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("ReadFile() on missing file should fail")
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		size int
		want []Batch
	}{
		{
			name: "uneven tail",
			ids:  []string{"1001", "1002", "1003"},
			size: 2,
			want: []Batch{
				{Index: 1, IDs: []string{"1001", "1002"}},
				{Index: 2, IDs: []string{"1003"}},
			},
		},
		{
			name: "exact fit",
			ids:  []string{"a", "b"},
			size: 2,
			want: []Batch{{Index: 1, IDs: []string{"a", "b"}}},
		},
		{
			name: "empty input",
			ids:  nil,
			size: 10,
			want: []Batch{},
		},
		{
			name: "non-positive size falls back to one",
			ids:  []string{"a", "b"},
			size: 0,
			want: []Batch{{Index: 1, IDs: []string{"a"}}, {Index: 2, IDs: []string{"b"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Partition(tt.ids, tt.size)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Partition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPartition_AppendDoesNotLeak(t *testing.T) {
	ids := []string{"1", "2", "3"}
	batches := Partition(ids, 2)

	_ = append(batches[0].IDs, "x")
	if ids[2] != "3" {
		t.Errorf("appending to a batch overwrote the next identifier: %v", ids)
	}
}
