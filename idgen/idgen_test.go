package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("prj_", Default)
	id := gen()
	if !strings.HasPrefix(id, "prj_") {
		t.Errorf("id %q lacks prefix", id)
	}
	if len(id) <= len("prj_") {
		t.Errorf("id %q has no body", id)
	}
}
