// pattern: Imperative Shell
package instance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const filePrefix = "dmnexplorer"

// fileBase names the lock and port files of one workspace, so different
// workspaces can be explored side by side.
func fileBase(workspace string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(workspace)))
	return filePrefix + "-" + hex.EncodeToString(sum[:6])
}

func lockPath(dataDir, workspace string) string {
	return filepath.Join(dataDir, fileBase(workspace)+".lock")
}

func portPath(dataDir, workspace string) string {
	return filepath.Join(dataDir, fileBase(workspace)+".port")
}

// Lock acquires an exclusive file lock for the workspace.
// Returns the flock handle (caller must defer Cleanup) or an error if
// another instance already explores this workspace.
func Lock(dataDir, workspace string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	fl := flock.New(lockPath(dataDir, workspace))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another dmnexplorer instance is already running for %s", workspace)
	}
	return fl, nil
}

// WritePort records the web server's listener address for the workspace.
func WritePort(dataDir, workspace, addr string) error {
	return os.WriteFile(portPath(dataDir, workspace), []byte(addr), 0600)
}

// ReadPort returns the recorded listener address for the workspace.
func ReadPort(dataDir, workspace string) (string, error) {
	data, err := os.ReadFile(portPath(dataDir, workspace))
	if err != nil {
		return "", err
	}
	addr := strings.TrimSpace(string(data))
	if addr == "" {
		return "", fmt.Errorf("dmnexplorer port file is empty (try 'dmnexplorer cleanup')")
	}
	return addr, nil
}

// Cleanup removes the port file and releases the file lock.
func Cleanup(dataDir, workspace string, fl *flock.Flock) {
	_ = os.Remove(portPath(dataDir, workspace))
	if fl != nil {
		_ = fl.Unlock()
	}
}

// RemoveStale deletes the lock and port files of a workspace whose
// instance is gone. It refuses while the lock is held.
func RemoveStale(dataDir, workspace string) error {
	fl := flock.New(lockPath(dataDir, workspace))
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to check lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("a dmnexplorer instance is still running for %s", workspace)
	}
	defer func() { _ = fl.Unlock() }()

	_ = os.Remove(portPath(dataDir, workspace))
	if err := os.Remove(lockPath(dataDir, workspace)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
