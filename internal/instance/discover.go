// pattern: Imperative Shell
package instance

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/flock"
)

const healthTimeout = 2 * time.Second

// Discover checks whether a running instance explores workspace and returns
// its base URL (e.g. "http://127.0.0.1:12345"). Returns an error if no
// instance is running, the port file is missing, or the health check fails.
func Discover(dataDir, workspace string) (string, error) {
	// If we can take the lock, nobody holds it.
	fl := flock.New(lockPath(dataDir, workspace))
	locked, err := fl.TryLock()
	if err != nil {
		return "", fmt.Errorf("failed to check lock: %w", err)
	}
	if locked {
		_ = fl.Unlock()
		return "", fmt.Errorf("no running dmnexplorer instance for %s (start dmnexplorer first)", workspace)
	}

	addr, err := ReadPort(dataDir, workspace)
	if err != nil {
		return "", fmt.Errorf("dmnexplorer instance detected but port file unusable (try 'dmnexplorer cleanup'): %w", err)
	}
	baseURL := fmt.Sprintf("http://%s", addr)

	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return "", fmt.Errorf("dmnexplorer instance not responding (try 'dmnexplorer cleanup'): %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dmnexplorer health check failed (status %d)", resp.StatusCode)
	}

	return baseURL, nil
}
