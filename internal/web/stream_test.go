package web_test

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"dmnexplorer/internal/web"
)

func TestOutputStream(t *testing.T) {
	s, reg := newServer(t, web.Config{Bind: "127.0.0.1"}, t.TempDir(), nil)
	base := startServer(t, s)

	surface := reg.Acquire("/ws/loan.dmn")
	surface.AppendLine("before connect")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/api/output/stream?name=" + url.QueryEscape("/ws/loan.dmn")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	read := func() string {
		t.Helper()
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if typ != websocket.MessageText {
			t.Errorf("message type = %v, want text", typ)
		}
		return string(data)
	}

	if got := read(); got != "before connect" {
		t.Errorf("first message = %q", got)
	}

	surface.AppendLine("bodyResponse: live")
	if got := read(); got != "bodyResponse: live" {
		t.Errorf("second message = %q", got)
	}
}

func TestOutputStream_UnknownSurface(t *testing.T) {
	s, _ := newServer(t, web.Config{Bind: "127.0.0.1"}, t.TempDir(), nil)
	base := startServer(t, s)

	resp, err := http.Get(base + "/api/output/stream?name=nope")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 before upgrade", resp.StatusCode)
	}
}

func TestEvents_SSE(t *testing.T) {
	s, _ := newServer(t, web.Config{Bind: "127.0.0.1"}, t.TempDir(), nil)
	base := startServer(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read event: %v", err)
			}
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}

	if got := nextEvent(); got != "connected" {
		t.Fatalf("first event = %q, want connected", got)
	}

	s.NotifyRefresh()
	if got := nextEvent(); got != "refresh" {
		t.Errorf("event = %q, want refresh", got)
	}
	s.NotifyOutput()
	if got := nextEvent(); got != "output" {
		t.Errorf("event = %q, want output", got)
	}
}
