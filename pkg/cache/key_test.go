package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"default namespace", Key{ID: "1001"}, "crawler:product:1001"},
		{"custom namespace", Key{Namespace: "staging", ID: "42"}, "staging:42"},
		{"trailing colon", Key{Namespace: "staging:", ID: "42"}, "staging:42"},
		{"whitespace id", Key{ID: " 7 "}, "crawler:product:7"},
		{"non-numeric id", Key{ID: "sku-9"}, "crawler:product:sku-9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
