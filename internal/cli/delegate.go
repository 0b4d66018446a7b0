// pattern: Imperative Shell
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"dmnexplorer/internal/instance"
)

// Delegate coordinates discovering the running instance for a workspace
// and delegating a CLI command to it via HTTP. It handles error
// classification (no instance vs other errors) and exit code logic.
type Delegate struct {
	// ConfigDir is the config directory for lock/port file discovery.
	ConfigDir string

	// Workspace selects the instance; empty resolves it from config.
	Workspace string

	// ExitFunc is called to exit the process. Defaults to os.Exit.
	ExitFunc func(int)

	// Stderr is where error messages are written. Defaults to os.Stderr.
	Stderr io.Writer
}

// discover returns a client for the running instance. On failure it
// prints the error, calls ExitFunc, and returns nil.
func (d *Delegate) discover() *instance.Client {
	if d.ExitFunc == nil {
		d.ExitFunc = os.Exit
	}
	if d.Stderr == nil {
		d.Stderr = os.Stderr
	}

	cfg, err := LoadConfig(d.ConfigDir, d.Workspace)
	if err != nil {
		fmt.Fprintf(d.Stderr, "error: %v\n", err)
		d.ExitFunc(1)
		return nil
	}
	workspace, err := cfg.ResolveWorkspace()
	if err != nil {
		fmt.Fprintf(d.Stderr, "error: %v\n", err)
		d.ExitFunc(1)
		return nil
	}

	baseURL, err := instance.Discover(ResolveDataDir(d.ConfigDir), workspace)
	if err != nil {
		fmt.Fprintf(d.Stderr, "error: %v\n", err)
		if strings.Contains(err.Error(), "no running dmnexplorer instance") {
			d.ExitFunc(2)
		} else {
			d.ExitFunc(1)
		}
		return nil
	}
	return instance.NewClient(baseURL)
}

// Run executes a delegated command by discovering the running instance and
// invoking fn with an HTTP client targeting it.
//
// Exit codes:
// - 2: no running dmnexplorer instance found
// - 1: any other error (connection, client method failed, etc.)
// - 0: success (fn returned nil)
func (d *Delegate) Run(fn func(*instance.Client) error) {
	client := d.discover()
	if client == nil {
		return
	}

	if err := fn(client); err != nil {
		errMsg := err.Error()
		// "dmnexplorer returned status %d: %s" shows only the message part
		if strings.Contains(errMsg, "dmnexplorer returned status") {
			if parts := strings.SplitN(errMsg, ": ", 2); len(parts) > 1 {
				errMsg = parts[1]
			}
		}
		fmt.Fprintf(d.Stderr, "error: %s\n", errMsg)
		d.ExitFunc(1)
	}
}

// PrintJSON writes JSON data to w, indented when w is a terminal.
func PrintJSON(w io.Writer, data []byte) error {
	if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			var obj any
			if err := json.Unmarshal(data, &obj); err == nil {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(obj)
			}
		}
	}
	_, err := w.Write(data)
	return err
}
