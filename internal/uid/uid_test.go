package uid

import "testing"

func TestNewIsUniqueAndValid(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if !Valid(id) {
			t.Fatalf("New() = %q is not valid", id)
		}
		if seen[id] {
			t.Fatalf("New() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	for _, id := range []string{"", "abc", "ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ", "0123456789abcdef0123456789abcdef0"} {
		if Valid(id) {
			t.Errorf("Valid(%q) = true, want false", id)
		}
	}
	if !Valid("0123456789abcdef0123456789abcdef") {
		t.Error("Valid() rejected a well-formed id")
	}
}
