package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"dmnexplorer/internal/output"
	"dmnexplorer/internal/relay"
	"dmnexplorer/internal/web"
)

func loanWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{"loan.dmn", "loan-tests/case1.json", "other.txt", "rates.dmn"} {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("<x/>"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func getJSON(t *testing.T, u string, v any) int {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s error = %v", u, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if v != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", u, err)
		}
	}
	return resp.StatusCode
}

func TestHandleTree(t *testing.T) {
	root := loanWorkspace(t)
	s, _ := newServer(t, web.Config{Bind: "127.0.0.1"}, root, nil)
	base := startServer(t, s)

	var tree []web.EntryResponse
	if status := getJSON(t, base+"/api/tree", &tree); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	if len(tree) != 2 || tree[0].Name != "loan.dmn" || tree[1].Name != "rates.dmn" {
		t.Fatalf("tree = %+v", tree)
	}
	loan := tree[0]
	if loan.Class != "decision" || loan.Kind != "file" {
		t.Errorf("loan = %+v", loan)
	}
	if loan.HasFixtures == nil || !*loan.HasFixtures {
		t.Error("loan.dmn should report fixtures")
	}
	if len(loan.Children) != 1 || loan.Children[0].Name != "case1.json" || loan.Children[0].Class != "fixture" {
		t.Errorf("loan children = %+v", loan.Children)
	}
	if tree[1].HasFixtures == nil || *tree[1].HasFixtures {
		t.Error("rates.dmn should report no fixtures")
	}
}

func TestHandleChildren(t *testing.T) {
	root := loanWorkspace(t)
	s, _ := newServer(t, web.Config{Bind: "127.0.0.1"}, root, nil)
	base := startServer(t, s)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"with fixtures", "loan.dmn", http.StatusOK},
		{"absolute path", filepath.Join(root, "loan.dmn"), http.StatusOK},
		{"absent fixture dir", "rates.dmn", http.StatusNotFound},
		{"not a decision", "other.txt", http.StatusBadRequest},
		{"missing file", "gone.dmn", http.StatusNotFound},
		{"no path", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var children []web.EntryResponse
			status := getJSON(t, base+"/api/children?path="+url.QueryEscape(tt.path), &children)
			if status != tt.status {
				t.Fatalf("status = %d, want %d", status, tt.status)
			}
			if status == http.StatusOK && (len(children) != 1 || children[0].Name != "case1.json") {
				t.Errorf("children = %+v", children)
			}
		})
	}
}

func postValidate(t *testing.T, base, path string) (int, web.ValidateResponse) {
	t.Helper()
	resp, err := http.Post(base+"/api/validate?path="+url.QueryEscape(path), "", nil)
	if err != nil {
		t.Fatalf("POST validate error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out web.ValidateResponse
	if resp.StatusCode == http.StatusAccepted {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode, out
}

func waitState(t *testing.T, s *output.Surface, want output.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("surface state = %v, want %v", s.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleValidate(t *testing.T) {
	root := loanWorkspace(t)
	v := &fakeValidator{lines: []string{"bodyResponse: valid"}, calls: make(chan string, 4)}
	s, reg := newServer(t, web.Config{Bind: "127.0.0.1"}, root, v)
	base := startServer(t, s)

	status, resp := postValidate(t, base, "loan.dmn")
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	want := filepath.Join(root, "loan.dmn")
	if resp.Surface != want || resp.Run != 1 {
		t.Errorf("response = %+v, want surface %q run 1", resp, want)
	}
	if got := <-v.calls; got != want {
		t.Errorf("validator called with %q, want %q", got, want)
	}

	surface, ok := reg.Get(want)
	if !ok {
		t.Fatal("surface not registered")
	}
	waitState(t, surface, output.StateComplete)

	var snap output.Snapshot
	if status := getJSON(t, base+"/api/output?name="+url.QueryEscape(want), &snap); status != http.StatusOK {
		t.Fatalf("GET output status = %d", status)
	}
	if snap.State != "complete" || len(snap.Lines) != 1 || snap.Lines[0] != "bodyResponse: valid" {
		t.Errorf("snapshot = %+v", snap)
	}

	// A second validation reuses the surface.
	if status, again := postValidate(t, base, want); status != http.StatusAccepted || again.Surface != want || again.Run != 2 {
		t.Errorf("second validate = %d %+v", status, again)
	}
	<-v.calls
	if reg.Len() != 1 {
		t.Errorf("registry len = %d, want 1", reg.Len())
	}
}

func TestHandleValidate_Rejects(t *testing.T) {
	root := loanWorkspace(t)
	s, reg := newServer(t, web.Config{Bind: "127.0.0.1"}, root, nil)
	base := startServer(t, s)

	if status, _ := postValidate(t, base, "other.txt"); status != http.StatusBadRequest {
		t.Errorf("other.txt status = %d, want 400", status)
	}
	if status, _ := postValidate(t, base, "loan-tests/case1.json"); status != http.StatusBadRequest {
		t.Errorf("fixture status = %d, want 400", status)
	}
	if reg.Len() != 0 {
		t.Errorf("rejected requests created %d surfaces", reg.Len())
	}
}

func TestHandleValidate_ReadErrorShownOnSurface(t *testing.T) {
	root := loanWorkspace(t)
	v := &fakeValidator{err: errors.New("read decision file: permission denied")}
	s, reg := newServer(t, web.Config{Bind: "127.0.0.1"}, root, v)
	base := startServer(t, s)

	status, resp := postValidate(t, base, "loan.dmn")
	if status != http.StatusAccepted {
		t.Fatalf("status = %d", status)
	}
	surface, _ := reg.Get(resp.Surface)
	waitState(t, surface, output.StateErrored)
	if lines := surface.Lines(); len(lines) != 1 || lines[0] != "error: read decision file: permission denied" {
		t.Errorf("lines = %q", lines)
	}
}

// gatedValidator holds its first run open until release is closed, then
// fails it. Later runs complete at once.
type gatedValidator struct {
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedValidator) Validate(ctx context.Context, path string, sink relay.Sink) error {
	first := g.calls.Add(1) == 1
	sink.Begin()
	if !first {
		sink.AppendLine("bodyResponse: second")
		sink.Finish(nil)
		return nil
	}
	sink.AppendLine("bodyResponse: first")
	go func() {
		<-g.release
		err := errors.New("connection reset")
		sink.AppendLine("error: " + err.Error())
		sink.Finish(err)
	}()
	return nil
}

func TestHandleOutput_RunKeepsItsOwnOutcome(t *testing.T) {
	root := loanWorkspace(t)
	v := &gatedValidator{release: make(chan struct{})}
	s, reg := newServer(t, web.Config{Bind: "127.0.0.1"}, root, v)
	base := startServer(t, s)

	_, first := postValidate(t, base, "loan.dmn")
	_, second := postValidate(t, base, "loan.dmn")
	if first.Run != 1 || second.Run != 2 {
		t.Fatalf("runs = %d, %d, want 1, 2", first.Run, second.Run)
	}
	surface, _ := reg.Get(first.Surface)
	waitState(t, surface, output.StateComplete)

	runURL := func(run int) string {
		return base + "/api/output?name=" + url.QueryEscape(first.Surface) + "&run=" + strconv.Itoa(run)
	}

	var snap output.Snapshot
	if status := getJSON(t, runURL(2), &snap); status != http.StatusOK {
		t.Fatalf("GET run 2 status = %d", status)
	}
	if snap.Run != 2 || snap.State != "complete" || len(snap.Lines) != 1 || snap.Lines[0] != "bodyResponse: second" {
		t.Errorf("run 2 = %+v", snap)
	}

	// Run 1 is still open although the surface as a whole reads complete.
	if status := getJSON(t, runURL(1), &snap); status != http.StatusOK {
		t.Fatalf("GET run 1 status = %d", status)
	}
	if snap.State != "in_flight" {
		t.Errorf("run 1 state = %s, want in_flight", snap.State)
	}

	close(v.release)
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap = output.Snapshot{}
		getJSON(t, runURL(1), &snap)
		if snap.State == "errored" || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if snap.State != "errored" {
		t.Fatalf("run 1 state = %s, want errored", snap.State)
	}
	want := []string{"bodyResponse: first", "error: connection reset"}
	if !slices.Equal(snap.Lines, want) {
		t.Errorf("run 1 lines = %q, want %q", snap.Lines, want)
	}
	if surface.State() != output.StateComplete {
		t.Errorf("surface state = %v, want the latest run's outcome", surface.State())
	}
}

func TestHandleOutput_BadRun(t *testing.T) {
	s, reg := newServer(t, web.Config{Bind: "127.0.0.1"}, t.TempDir(), nil)
	base := startServer(t, s)
	reg.Acquire("a.dmn").Begin()

	tests := []struct {
		run  string
		want int
	}{
		{"1", http.StatusOK},
		{"2", http.StatusNotFound},
		{"0", http.StatusBadRequest},
		{"-1", http.StatusBadRequest},
		{"two", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.run, func(t *testing.T) {
			if status := getJSON(t, base+"/api/output?name=a.dmn&run="+tt.run, nil); status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestHandleOutput_NotFound(t *testing.T) {
	s, _ := newServer(t, web.Config{Bind: "127.0.0.1"}, t.TempDir(), nil)
	base := startServer(t, s)

	if status := getJSON(t, base+"/api/output?name=nope", nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if status := getJSON(t, base+"/api/output", nil); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestHandleListOutputs(t *testing.T) {
	s, reg := newServer(t, web.Config{Bind: "127.0.0.1"}, t.TempDir(), nil)
	base := startServer(t, s)

	reg.Acquire("a.dmn").AppendLine("x")
	reg.Acquire("b.dmn")

	var list []output.Snapshot
	if status := getJSON(t, base+"/api/outputs", &list); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(list) != 2 || list[0].Name != "b.dmn" || list[1].Name != "a.dmn" {
		t.Fatalf("list = %+v", list)
	}
	if list[1].Lines != nil {
		t.Error("list entries should omit lines")
	}
}
