package web_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/logging"
	"dmnexplorer/internal/output"
	"dmnexplorer/internal/relay"
	"dmnexplorer/internal/web"
)

// fakeValidator writes a canned response into the sink.
type fakeValidator struct {
	lines []string
	err   error
	calls chan string
}

func (f *fakeValidator) Validate(ctx context.Context, path string, sink relay.Sink) error {
	if f.calls != nil {
		f.calls <- path
	}
	if f.err != nil {
		return f.err
	}
	sink.Begin()
	for _, l := range f.lines {
		sink.AppendLine(l)
	}
	sink.Finish(nil)
	return nil
}

func newServer(t *testing.T, cfg web.Config, root string, v web.Validator) (*web.Server, *output.Registry) {
	t.Helper()
	lm := logging.NewTestLogManager(100)
	t.Cleanup(func() { _ = lm.Close() })

	reg, err := output.NewRegistry(8, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v == nil {
		v = &fakeValidator{}
	}
	return web.New(cfg, explorer.NewSource(root), v, reg, nil, lm), reg
}

// startServer serves on an ephemeral port and returns the base URL.
func startServer(t *testing.T, s *web.Server) string {
	t.Helper()
	ln, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		<-done
	})
	return "http://" + s.Addr()
}

func TestHandleHealth(t *testing.T) {
	s, _ := newServer(t, web.Config{Bind: "127.0.0.1"}, t.TempDir(), nil)
	baseURL := startServer(t, s)

	t.Run("returns 200 with JSON body", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/health")
		if err != nil {
			t.Fatalf("GET /api/health error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("reading body error = %v", err)
		}

		want := `{"status":"ok"}`
		if string(body) != want {
			t.Errorf("body = %q, want %q", string(body), want)
		}
	})

	t.Run("content-type is application/json", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/health")
		if err != nil {
			t.Fatalf("GET /api/health error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		ct := resp.Header.Get("Content-Type")
		if ct != "application/json" {
			t.Errorf("Content-Type = %q, want %q", ct, "application/json")
		}
	})
}

func TestServer_AddrBeforeListen(t *testing.T) {
	s, _ := newServer(t, web.Config{Bind: "127.0.0.1", Port: 8765}, t.TempDir(), nil)

	if addr := s.Addr(); addr != "127.0.0.1:8765" {
		t.Errorf("Addr() before Listen() = %q, want %q", addr, "127.0.0.1:8765")
	}
}

// After Shutdown() the server no longer accepts new connections.
func TestServer_GracefulShutdown(t *testing.T) {
	s, _ := newServer(t, web.Config{Bind: "127.0.0.1"}, t.TempDir(), nil)

	ln, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ln)
	}()

	addr := s.Addr()

	resp, err := http.Get("http://" + addr + "/api/health")
	if err != nil {
		t.Fatalf("pre-shutdown GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pre-shutdown status = %d, want 200", resp.StatusCode)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("Serve() returned unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("server did not stop after Shutdown()")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	if _, err := client.Get("http://" + addr + "/api/health"); err == nil {
		t.Error("expected connection refused after Shutdown(), but GET succeeded")
	}
}

// Start() returns an error when the configured port is already in use.
func TestServer_BindFailure(t *testing.T) {
	occupier, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not open occupier listener: %v", err)
	}
	defer func() { _ = occupier.Close() }()

	occupiedAddr := occupier.Addr().String()
	portStr := occupiedAddr[strings.LastIndex(occupiedAddr, ":")+1:]
	port := 0
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		t.Fatalf("parse port from %q: %v", occupiedAddr, err)
	}

	s, _ := newServer(t, web.Config{Bind: "127.0.0.1", Port: port}, t.TempDir(), nil)

	bindErr := s.Start()
	if bindErr == nil {
		t.Fatal("Start() returned nil error, expected bind error")
	}
	errStr := bindErr.Error()
	if !strings.Contains(errStr, "address already in use") &&
		!strings.Contains(errStr, "bind") &&
		!strings.Contains(errStr, "listen") {
		t.Errorf("Start() error = %q; expected address-in-use or bind error", errStr)
	}
}
