// pattern: Imperative Shell

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T, level string) (*Manager, string) {
	t.Helper()
	logFile := filepath.Join(t.TempDir(), "logs", "dmnexplorer.log")
	mgr, err := NewManager(Config{
		FilePath:       logFile,
		MaxSizeMB:      1,
		MaxBackups:     1,
		MaxAgeDays:     1,
		ChannelBufSize: 100,
		Level:          level,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return mgr, logFile
}

func TestNewManager_RequiresFilePath(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("NewManager() with empty FilePath should fail")
	}
}

func TestNewManager_CreatesLogDirectory(t *testing.T) {
	mgr, logFile := newTestManager(t, "debug")
	defer func() { _ = mgr.Close() }()

	if _, err := os.Stat(filepath.Dir(logFile)); err != nil {
		t.Fatalf("log directory not created: %v", err)
	}
}

func TestManager_For_CachesByScope(t *testing.T) {
	mgr, _ := newTestManager(t, "debug")
	defer func() { _ = mgr.Close() }()

	relay := mgr.For("relay")
	if relay != mgr.For("relay") {
		t.Error("For() should return the cached logger for the same scope")
	}
	if relay == mgr.For("watch") {
		t.Error("For() should return distinct loggers for distinct scopes")
	}
	if relay.Scope() != "relay" {
		t.Errorf("Scope() = %q, want relay", relay.Scope())
	}
}

func TestManager_Forget(t *testing.T) {
	mgr, _ := newTestManager(t, "debug")
	defer func() { _ = mgr.Close() }()

	before := mgr.For("web.stream")
	keep := mgr.For("relay")
	mgr.Forget("web")

	if mgr.For("web.stream") == before {
		t.Error("Forget() should drop loggers under the prefix")
	}
	if mgr.For("relay") != keep {
		t.Error("Forget() should keep loggers outside the prefix")
	}
}

func TestManager_LoggingToChannel(t *testing.T) {
	mgr, _ := newTestManager(t, "debug")
	defer func() { _ = mgr.Close() }()

	mgr.For("relay").Info("validation sent", "target", "loan.dmn")
	_ = mgr.Sync()

	select {
	case entry := <-mgr.Entries():
		if entry.Message != "validation sent" {
			t.Errorf("Message = %q, want %q", entry.Message, "validation sent")
		}
		if entry.Scope != "relay" {
			t.Errorf("Scope = %q, want relay", entry.Scope)
		}
		if entry.Fields["target"] != "loan.dmn" {
			t.Errorf("Fields[target] = %v, want loan.dmn", entry.Fields["target"])
		}
	default:
		t.Fatal("entry not received on channel")
	}
}

func TestManager_LevelFiltering(t *testing.T) {
	mgr, _ := newTestManager(t, "warn")
	defer func() { _ = mgr.Close() }()

	logger := mgr.For("watch")
	logger.Info("dropped")
	logger.Warn("kept")
	_ = mgr.Sync()

	select {
	case entry := <-mgr.Entries():
		if entry.Message != "kept" {
			t.Errorf("first entry = %q, want kept", entry.Message)
		}
		if entry.Level != "WARN" {
			t.Errorf("Level = %q, want WARN", entry.Level)
		}
	default:
		t.Fatal("warn entry not received")
	}
}

func TestManager_LoggingToFile(t *testing.T) {
	mgr, logFile := newTestManager(t, "debug")

	mgr.For("app").With("workspace", "/ws").Info("application starting")
	_ = mgr.Close()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)
	for _, want := range []string{"application starting", `"logger":"app"`, `"workspace":"/ws"`} {
		if !strings.Contains(content, want) {
			t.Errorf("log file missing %q: %s", want, content)
		}
	}
}

func TestManager_Sink(t *testing.T) {
	mgr, _ := newTestManager(t, "debug")
	defer func() { _ = mgr.Close() }()

	if !mgr.Sink().Send(LogEntry{Level: "INFO", Scope: "external", Message: "injected"}) {
		t.Fatal("Send() on open sink returned false")
	}

	select {
	case got := <-mgr.Entries():
		if got.Message != "injected" {
			t.Errorf("Message = %q, want injected", got.Message)
		}
	default:
		t.Fatal("entry not received on channel")
	}
}

func TestParseZapLevel_UnknownDefaultsToInfo(t *testing.T) {
	if got := parseZapLevel("loud").String(); got != "info" {
		t.Errorf("parseZapLevel(loud) = %q, want info", got)
	}
	if got := parseZapLevel("debug").String(); got != "debug" {
		t.Errorf("parseZapLevel(debug) = %q, want debug", got)
	}
}
