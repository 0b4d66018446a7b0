// pattern: Imperative Shell

package logging

import "testing"

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Debug("test")
	logger.Info("test")
	logger.Warn("test")
	logger.Error("test")

	if logger.With("key", "value") == nil {
		t.Fatal("With() on NopLogger returned nil")
	}
}

func TestScopedLogger_NilReceiver(t *testing.T) {
	var logger *ScopedLogger
	logger.Info("does not panic")
	if logger.Scope() != "" {
		t.Errorf("Scope() on nil = %q, want empty", logger.Scope())
	}
}

func TestTestLogManager(t *testing.T) {
	lm := NewTestLogManager(10)
	defer func() { _ = lm.Close() }()

	lm.For("watch").Debug("event", "op", "CREATE")

	select {
	case entry := <-lm.Channel():
		if entry.Message != "event" || entry.Scope != "watch" {
			t.Errorf("entry = %+v", entry)
		}
		if entry.Level != "DEBUG" {
			t.Errorf("Level = %q, want DEBUG", entry.Level)
		}
	default:
		t.Fatal("no entry received on channel")
	}
}

func TestTestLogManager_Drain(t *testing.T) {
	lm := NewTestLogManager(10)
	defer func() { _ = lm.Close() }()

	logger := lm.For("relay")
	logger.Info("a")
	logger.Info("b")

	entries := lm.Drain()
	if len(entries) != 2 {
		t.Fatalf("Drain() returned %d entries, want 2", len(entries))
	}
	if len(lm.Drain()) != 0 {
		t.Error("second Drain() should be empty")
	}
}
