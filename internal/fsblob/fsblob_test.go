package fsblob

import (
	"path/filepath"
	"testing"
)

func TestNewCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if s.dir != dir {
		t.Fatalf("Store.dir = %q, want %q", s.dir, dir)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	want := []byte("peer blob contents")
	if err := s.Write("peer", want); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if !s.Exists("peer") {
		t.Fatal("Exists() = false after Write()")
	}
	got, err := s.Read("peer")
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("Read() = %q, want %q", got, want)
	}
}

func TestWriteOverwritesAtomically(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := s.Write("peer", []byte("first")); err != nil {
		t.Fatalf("first Write() = %v", err)
	}
	if err := s.Write("peer", []byte("second")); err != nil {
		t.Fatalf("second Write() = %v", err)
	}
	got, err := s.Read("peer")
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("Read() = %q, want %q", got, "second")
	}
}

func TestExistsFalseForMissingBlob(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if s.Exists("peer") {
		t.Fatal("Exists() = true for a blob never written")
	}
}

func TestReadMissingBlobReturnsError(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if _, err := s.Read("peer"); err == nil {
		t.Fatal("Read() of a missing blob = nil error, want non-nil")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := s.Remove("peer"); err != nil {
		t.Fatalf("Remove() of a never-written blob = %v, want nil", err)
	}
	if err := s.Write("peer", []byte("x")); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if err := s.Remove("peer"); err != nil {
		t.Fatalf("first Remove() = %v", err)
	}
	if err := s.Remove("peer"); err != nil {
		t.Fatalf("second Remove() (idempotent) = %v", err)
	}
	if s.Exists("peer") {
		t.Fatal("Exists() = true after Remove()")
	}
}
