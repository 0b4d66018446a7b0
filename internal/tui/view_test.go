package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestView_ShowsHeaderAndDecisions(t *testing.T) {
	m := newTestModel(t)

	view := ansi.Strip(m.View())

	for _, want := range []string{"DMN Explorer", m.source.Root(), "Decisions", "loan.dmn", "rates.dmn"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "notes.txt") {
		t.Error("view should not list non-decision files")
	}
}

func TestView_ShowsFixturesAndMarkers(t *testing.T) {
	m := newTestModel(t)
	m, cmd := press(m, "enter")
	m = feed(t, m, cmd)
	m, _ = press(m, "G")
	m, cmd = press(m, "enter")
	m = feed(t, m, cmd)

	view := ansi.Strip(m.View())

	for _, want := range []string{"▾ loan.dmn", "├─ case1.json", "└─ case2.json", "(no fixtures)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestView_EmptyWorkspace(t *testing.T) {
	m := newTestModel(t)
	m.treeItems = nil

	view := ansi.Strip(m.View())
	if !strings.Contains(view, "No .dmn files in this workspace.") {
		t.Errorf("view missing empty-workspace hint:\n%s", view)
	}
}

func TestView_OutputPanel(t *testing.T) {
	m := newTestModel(t)
	m, cmd := press(m, "v")
	m = feed(t, m, cmd)
	m, cmd = press(m, "v")
	m = feed(t, m, cmd)

	view := ansi.Strip(m.View())

	for _, want := range []string{"Output: loan.dmn", "[complete, run 2]", "--- run 2 ---", "bodyResponse: <valid/>"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestView_WebURLInHeader(t *testing.T) {
	m := newTestModel(t)
	m.webURL = "http://127.0.0.1:7070"

	if view := ansi.Strip(m.View()); !strings.Contains(view, "http://127.0.0.1:7070") {
		t.Error("header should show the web URL")
	}
}

func TestView_StatusBarError(t *testing.T) {
	m := newTestModel(t)
	m.err = errors.New("connection refused")
	m.setStatus(StatusError, "Request for loan.dmn failed")

	view := ansi.Strip(m.View())
	for _, want := range []string{"✗", "Request for loan.dmn failed: connection refused", "esc to clear"} {
		if !strings.Contains(view, want) {
			t.Errorf("status bar missing %q", want)
		}
	}
}

func TestView_LogPanel(t *testing.T) {
	m := newTestModel(t)
	m, _ = press(m, "l")

	view := ansi.Strip(m.View())
	if !strings.Contains(view, "Logs (0)") {
		t.Errorf("view missing log panel header:\n%s", view)
	}
	if !strings.Contains(view, "No log entries") {
		t.Error("empty log panel should say so")
	}
}

func TestView_ContextualHelp(t *testing.T) {
	m := newTestModel(t)
	if help := ansi.Strip(m.renderContextualHelp()); !strings.Contains(help, "v validate") {
		t.Errorf("tree help = %q", help)
	}

	m, cmd := press(m, "enter")
	m = feed(t, m, cmd)
	m, _ = press(m, "down")
	if help := ansi.Strip(m.renderContextualHelp()); !strings.Contains(help, "e evaluate") {
		t.Errorf("fixture help = %q", help)
	}

	m.panelFocus = FocusOutput
	if help := ansi.Strip(m.renderContextualHelp()); !strings.Contains(help, "scroll") {
		t.Errorf("output help = %q", help)
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("/ws", "/ws/loan.dmn"); got != "loan.dmn" {
		t.Errorf("displayName = %q, want loan.dmn", got)
	}
	if got := displayName("/ws", "/other/loan.dmn"); got != "/other/loan.dmn" {
		t.Errorf("displayName = %q, want path unchanged", got)
	}
}
