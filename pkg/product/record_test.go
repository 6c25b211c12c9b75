package product

import (
	"encoding/json"
	"testing"
)

func TestID_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		want string
	}{
		{name: "numeric", id: "1001", want: `1001`},
		{name: "negative numeric", id: "-7", want: `-7`},
		{name: "opaque", id: "sku-42", want: `"sku-42"`},
		{name: "empty", id: "", want: `""`},
		{name: "decimal stays string", id: "1.5", want: `"1.5"`},
		{name: "zero", id: "0", want: `0`},
		{name: "leading zero stays string", id: "0042", want: `"0042"`},
		{name: "plus sign stays string", id: "+5", want: `"+5"`},
		{name: "negative zero stays string", id: "-0", want: `"-0"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.id)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal(%q) = %s, want %s", tt.id, got, tt.want)
			}
		})
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  ID
	}{
		{input: `1001`, want: "1001"},
		{input: `"abc"`, want: "abc"},
		{input: `null`, want: ""},
	}

	for _, tt := range tests {
		var id ID
		if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
		}
		if id != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, id, tt.want)
		}
	}
}

func TestRecord_JSONKeys(t *testing.T) {
	rec := Record{ID: "7", Name: "Pen", URLKey: "pen", Price: 12000, Description: "Blue.", Images: []string{"a.jpg"}}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"id":7,"name":"Pen","url_key":"pen","price":12000,"description":"Blue.","images":["a.jpg"]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestRecord_NonCanonicalIDRoundTrip(t *testing.T) {
	in := []Record{{ID: "0042", Name: "Cup"}, {ID: "+5"}, {ID: "42"}}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out []Record
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	for i := range in {
		if out[i].ID != in[i].ID {
			t.Errorf("record %d: ID = %q, want %q", i, out[i].ID, in[i].ID)
		}
	}
}

func TestID_Int64(t *testing.T) {
	if n, ok := ID("123").Int64(); !ok || n != 123 {
		t.Errorf("Int64() = %d, %v, want 123, true", n, ok)
	}
	if _, ok := ID("x1").Int64(); ok {
		t.Error("Int64() should fail for non-numeric id")
	}
}
