package identity

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stockpile-dev/stockpile/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// TestNewID_Provisional tests that generated ids carry the provisional prefix
func TestNewID_Provisional(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, "local-") {
		t.Errorf("NewID() = %q, want local- prefix", id)
	}
	if !IsProvisional(id) {
		t.Errorf("IsProvisional(%q) = false, want true", id)
	}
	if id == NewID() {
		t.Error("NewID() returned the same id twice")
	}
}

// TestIsProvisional tests prefix classification
func TestIsProvisional(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"local-abc", true},
		{"local-", true},
		{"42", false},
		{"", false},
		{"LOCAL-abc", false},
		{"mylocal-abc", false},
	}
	for _, tt := range tests {
		if got := IsProvisional(tt.id); got != tt.want {
			t.Errorf("IsProvisional(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

// TestNewIdempotencyKey tests key uniqueness
func TestNewIdempotencyKey(t *testing.T) {
	a := NewIdempotencyKey()
	b := NewIdempotencyKey()
	if a == "" || a == b {
		t.Errorf("NewIdempotencyKey() = %q, %q; want distinct non-empty", a, b)
	}
}

// TestResolve_PassThrough tests that real ids resolve to themselves
func TestResolve_PassThrough(t *testing.T) {
	r := New(openTestStore(t))

	got, err := r.Resolve(context.Background(), "42")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if got != "42" {
		t.Errorf("Resolve(42) = %q, want '42'", got)
	}
}

// TestResolve_Mapped tests resolving a recorded mapping
func TestResolve_Mapped(t *testing.T) {
	r := New(openTestStore(t))
	ctx := context.Background()

	if err := r.RecordMapping(ctx, "local-abc", "42"); err != nil {
		t.Fatalf("RecordMapping() failed: %v", err)
	}

	got, err := r.Resolve(ctx, "local-abc")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if got != "42" {
		t.Errorf("Resolve(local-abc) = %q, want '42'", got)
	}
}

// TestResolve_Unmapped tests the unresolved-reference error
func TestResolve_Unmapped(t *testing.T) {
	r := New(openTestStore(t))

	_, err := r.Resolve(context.Background(), "local-unmapped")
	if !errors.Is(err, ErrUnresolved) {
		t.Errorf("Resolve() error = %v, want ErrUnresolved", err)
	}
}

// TestLookup tests the non-erroring mapping probe
func TestLookup(t *testing.T) {
	r := New(openTestStore(t))
	ctx := context.Background()

	_, ok, err := r.Lookup(ctx, "local-abc")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if ok {
		t.Error("Lookup() of unrecorded mapping reported hit")
	}

	if err := r.RecordMapping(ctx, "local-abc", "42"); err != nil {
		t.Fatalf("RecordMapping() failed: %v", err)
	}

	realID, ok, err := r.Lookup(ctx, "local-abc")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if !ok || realID != "42" {
		t.Errorf("Lookup() = (%q, %v), want (42, true)", realID, ok)
	}
}
