// Package product defines the canonical product record persisted in batch artifacts.
package product

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Record is the normalized, schema-fixed representation of one fetched product.
type Record struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	URLKey      string   `json:"url_key"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

// ID is a product identifier as returned by the API.
// Canonical base-10 integers are written as JSON numbers, anything else
// (including "0042" or "+5") as a JSON string.
type ID string

// String returns the identifier text.
func (id ID) String() string {
	return string(id)
}

// IsNumeric reports whether the identifier is a base-10 integer.
func (id ID) IsNumeric() bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil
}

// Int64 returns the identifier as an integer, or false if it is not numeric.
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int64(); ok && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON implements json.Unmarshaler. It accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}
