package localfs

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Save(context.Background(), "model-1_plan.ifc", strings.NewReader("ISO-10303-21;")); err != nil {
		t.Fatalf("save: %v", err)
	}

	rc, err := s.Open(context.Background(), "model-1_plan.ifc")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "ISO-10303-21;" {
		t.Fatalf("content = %q", data)
	}
}

func TestRejectsKeysOutsideBaseDir(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range []string{"", "../escape.ifc", "a/b.ifc", `a\b.ifc`} {
		if err := s.Save(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
		if _, err := s.Open(context.Background(), key); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}
