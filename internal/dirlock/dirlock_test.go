package dirlock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireExclusive(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer l1.Unlock()

	if _, err := Acquire(dir); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld from second Acquire, got %v", err)
	}
}

func TestUnlockAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := l1.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	l2, err := Acquire(dir)
	if err != nil {
		t.Fatalf("second Acquire after Unlock failed: %v", err)
	}
	defer l2.Unlock()
}

func TestAcquireWritesPID(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer l.Unlock()

	data, err := os.ReadFile(filepath.Join(dir, "LOCK"))
	if err != nil {
		t.Fatalf("reading LOCK file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected LOCK file to contain the holder pid")
	}
}

func TestDoubleUnlockIsSafe(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("first Unlock failed: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("second Unlock should be a no-op, got: %v", err)
	}
}
