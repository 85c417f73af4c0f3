package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("app")
	if !strings.HasPrefix(id, "app_") {
		t.Fatalf("expected app_ prefix, got %q", id)
	}
	if len(id) != len("app_")+idEntropyBytes*2 {
		t.Fatalf("unexpected id length: %q", id)
	}
	if NewID("app") == id {
		t.Fatal("expected distinct ids")
	}

	bare := NewID("")
	if strings.Contains(bare, "_") {
		t.Fatalf("expected bare hex id, got %q", bare)
	}
}
