//go:build e2e
// +build e2e

// pattern: Imperative Shell

package e2e

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"dmnexplorer/internal/config"
	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/instance"
	"dmnexplorer/internal/logging"
	"dmnexplorer/internal/output"
	"dmnexplorer/internal/relay"
	"dmnexplorer/internal/tui"
	"dmnexplorer/internal/web"
)

const loanModel = `<?xml version="1.0" encoding="UTF-8"?>
<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/" id="loan" name="loan" namespace="https://example.com/loan">
  <inputData id="amount" name="amount"/>
  <decision id="approved" name="approved">
    <literalExpression><text>amount &lt; 10000</text></literalExpression>
  </decision>
</definitions>
`

// SkipIfValidatorMissing skips the test unless a validation service answers
// on the configured address. It returns the relay config pointing at it.
func SkipIfValidatorMissing(t *testing.T) relay.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	if err := cfg.ApplyEnv(""); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	addr := net.JoinHostPort(cfg.Validator.Host, strconv.Itoa(cfg.Validator.Port))
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Skipf("no validation service at %s", addr)
	}
	_ = conn.Close()

	rc := relay.DefaultConfig()
	rc.Host = cfg.Validator.Host
	rc.Port = cfg.Validator.Port
	rc.Timeout = 30 * time.Second
	return rc
}

// NewTestWorkspace creates a workspace with one decision that has fixtures
// and one that does not.
func NewTestWorkspace(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"loan.dmn":              loanModel,
		"loan-tests/small.json": `{"amount": 500}`,
		"loan-tests/large.json": `{"amount": 50000}`,
		"rates.dmn":             loanModel,
		"README.md":             "not a decision",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return root
}

// ValidationRequest is one request seen by the stub validation service.
type ValidationRequest struct {
	Path        string
	ContentType string
	Body        string
}

// ValidationService is a stand-in for the DMN validation service. Validate
// requests get an empty message list; evaluate requests get a fixed result.
type ValidationService struct {
	*httptest.Server

	mu       sync.Mutex
	requests []ValidationRequest
}

func StartValidationService(t *testing.T) *ValidationService {
	t.Helper()

	vs := &ValidationService{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jitdmn/validate", func(w http.ResponseWriter, r *http.Request) {
		vs.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "[]")
	})
	mux.HandleFunc("POST /jitdmn", func(w http.ResponseWriter, r *http.Request) {
		vs.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"approved":true}`)
	})
	vs.Server = httptest.NewServer(mux)
	t.Cleanup(vs.Close)
	return vs
}

func (vs *ValidationService) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.requests = append(vs.requests, ValidationRequest{
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
	})
}

// Requests returns a copy of the requests received so far.
func (vs *ValidationService) Requests() []ValidationRequest {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return append([]ValidationRequest(nil), vs.requests...)
}

// RelayConfig points a relay client at the stub.
func (vs *ValidationService) RelayConfig(t *testing.T) relay.Config {
	t.Helper()

	u, err := url.Parse(vs.URL)
	if err != nil {
		t.Fatalf("parse %s: %v", vs.URL, err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split %s: %v", u.Host, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port %s: %v", portStr, err)
	}

	cfg := relay.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.Timeout = 10 * time.Second
	return cfg
}

// Stack is a running explorer instance wired the way main wires it.
type Stack struct {
	Workspace string
	Source    *explorer.Source
	Relay     *relay.Client
	Surfaces  *output.Registry
	Server    *web.Server
	Client    *instance.Client
	Logs      *logging.TestLogManager
}

func StartStack(t *testing.T, workspace string, rc relay.Config) *Stack {
	t.Helper()

	logs := logging.NewTestLogManager(1000)
	surfaces, err := output.NewRegistry(8, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	source := explorer.NewSource(workspace)
	rel := relay.New(rc, logs.For("relay"))

	srv := web.New(web.Config{Bind: "127.0.0.1"}, source, rel, surfaces, nil, logs)
	ln, err := srv.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	surfaces.SetOnChange(func(string) { srv.NotifyOutput() })

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = logs.Close()
	})

	return &Stack{
		Workspace: workspace,
		Source:    source,
		Relay:     rel,
		Surfaces:  surfaces,
		Server:    srv,
		Client:    instance.NewClient("http://" + srv.Addr()),
		Logs:      logs,
	}
}

// WaitForSurface polls until the named surface has finished at least
// minRuns runs.
func (s *Stack) WaitForSurface(t *testing.T, name string, minRuns int, timeout time.Duration) output.Snapshot {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if surface, ok := s.Surfaces.Get(name); ok {
			snap := surface.Snapshot()
			if snap.Runs >= minRuns && (snap.State == output.StateComplete.String() || snap.State == output.StateErrored.String()) {
				return snap
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("surface %s did not finish %d run(s) within %v", name, minRuns, timeout)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// TUITestRunner drives the TUI through Update() calls, running commands
// synchronously.
type TUITestRunner struct {
	t     *testing.T
	model tui.Model
}

func NewTUITestRunner(t *testing.T, model tui.Model) *TUITestRunner {
	return &TUITestRunner{t: t, model: model}
}

func (r *TUITestRunner) Model() tui.Model {
	return r.model
}

func (r *TUITestRunner) View() string {
	return r.model.View()
}

func (r *TUITestRunner) Init() {
	r.t.Helper()
	r.runCmd(r.model.Init())
}

// PressKey simulates pressing a regular key.
func (r *TUITestRunner) PressKey(key rune) {
	r.t.Helper()
	r.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{key}})
}

// PressSpecialKey simulates pressing a key like Enter or Tab.
func (r *TUITestRunner) PressSpecialKey(keyType tea.KeyType) {
	r.t.Helper()
	r.send(tea.KeyMsg{Type: keyType})
}

func (r *TUITestRunner) SendWindowSize(width, height int) {
	r.t.Helper()
	r.send(tea.WindowSizeMsg{Width: width, Height: height})
}

// Send delivers any message, e.g. one a surface change would post.
func (r *TUITestRunner) Send(msg tea.Msg) {
	r.t.Helper()
	r.send(msg)
}

func (r *TUITestRunner) send(msg tea.Msg) {
	model, cmd := r.model.Update(msg)
	r.model = model.(tui.Model)
	r.runCmd(cmd)
}

func (r *TUITestRunner) runCmd(cmd tea.Cmd) {
	r.runCmdWithDepth(cmd, 0)
}

// runCmdWithDepth executes a command with depth tracking to prevent infinite recursion.
func (r *TUITestRunner) runCmdWithDepth(cmd tea.Cmd, depth int) {
	if cmd == nil || depth > 10 {
		return
	}

	msg := cmd()
	if msg == nil {
		return
	}

	if batchMsg, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batchMsg {
			if c != nil {
				r.runCmdWithDepth(c, depth+1)
			}
		}
		return
	}

	switch msg.(type) {
	case tea.QuitMsg, spinner.TickMsg:
		return
	}

	model, nextCmd := r.model.Update(msg)
	r.model = model.(tui.Model)
	r.runCmdWithDepth(nextCmd, depth+1)
}
