package instance

import (
	"os"
	"testing"
)

func TestLockAndCleanup(t *testing.T) {
	dir := t.TempDir()
	ws := "/srv/models"

	fl, err := Lock(dir, ws)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if fl == nil {
		t.Fatal("Lock() returned nil flock")
	}

	// Same workspace is refused
	if _, err := Lock(dir, ws); err == nil {
		t.Fatal("second Lock() for the same workspace should have failed")
	}

	// Another workspace has its own lock
	other, err := Lock(dir, "/srv/other")
	if err != nil {
		t.Fatalf("Lock() for another workspace failed: %v", err)
	}
	Cleanup(dir, "/srv/other", other)

	if err := WritePort(dir, ws, "127.0.0.1:8080"); err != nil {
		t.Fatalf("WritePort() failed: %v", err)
	}
	addr, err := ReadPort(dir, ws)
	if err != nil {
		t.Fatalf("ReadPort() failed: %v", err)
	}
	if addr != "127.0.0.1:8080" {
		t.Fatalf("ReadPort() = %q, want %q", addr, "127.0.0.1:8080")
	}

	Cleanup(dir, ws, fl)

	if _, err := os.Stat(portPath(dir, ws)); !os.IsNotExist(err) {
		t.Fatal("port file should have been removed after Cleanup")
	}

	fl2, err := Lock(dir, ws)
	if err != nil {
		t.Fatalf("Lock() after Cleanup should succeed: %v", err)
	}
	Cleanup(dir, ws, fl2)
}

func TestFileBase_NormalizesPath(t *testing.T) {
	if fileBase("/srv/models/") != fileBase("/srv/models") {
		t.Error("trailing slash should not change the lock name")
	}
	if fileBase("/srv/a") == fileBase("/srv/b") {
		t.Error("distinct workspaces should get distinct lock names")
	}
}

func TestReadPort_Empty(t *testing.T) {
	dir := t.TempDir()
	if err := WritePort(dir, "/ws", "  "); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPort(dir, "/ws"); err == nil {
		t.Fatal("ReadPort() should fail on empty port file")
	}
}

func TestRemoveStale(t *testing.T) {
	dir := t.TempDir()
	ws := "/ws"

	fl, err := Lock(dir, ws)
	if err != nil {
		t.Fatal(err)
	}
	if err := WritePort(dir, ws, "127.0.0.1:1"); err != nil {
		t.Fatal(err)
	}
	if err := RemoveStale(dir, ws); err == nil {
		t.Fatal("RemoveStale() should refuse while the lock is held")
	}

	_ = fl.Unlock()
	if err := RemoveStale(dir, ws); err != nil {
		t.Fatalf("RemoveStale() error = %v", err)
	}
	if _, err := os.Stat(portPath(dir, ws)); !os.IsNotExist(err) {
		t.Error("port file should be gone")
	}
	if _, err := os.Stat(lockPath(dir, ws)); !os.IsNotExist(err) {
		t.Error("lock file should be gone")
	}
}
