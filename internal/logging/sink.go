// pattern: Imperative Shell

package logging

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var errSinkClosed = errors.New("logging: write to closed channel sink")

// ChannelSink is a zapcore.WriteSyncer that parses each JSON line into a
// LogEntry and hands it to a bounded channel. When the channel is full the
// oldest entry is dropped so logging never blocks the caller.
type ChannelSink struct {
	entries chan LogEntry
	mu      sync.Mutex
	closed  bool
}

func NewChannelSink(bufferSize int) *ChannelSink {
	return &ChannelSink{entries: make(chan LogEntry, bufferSize)}
}

func (s *ChannelSink) Write(p []byte) (int, error) {
	entry, err := parseEntry(p)
	if err != nil {
		// Unparseable lines are dropped; the file core still has them.
		return len(p), nil
	}
	if !s.Send(entry) {
		return 0, errSinkClosed
	}
	return len(p), nil
}

// Send enqueues an entry directly. It reports false once the sink is closed.
func (s *ChannelSink) Send(entry LogEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.entries <- entry:
		return true
	default:
	}
	select {
	case <-s.entries:
	default:
	}
	select {
	case s.entries <- entry:
	default:
	}
	return true
}

func (s *ChannelSink) Sync() error {
	return nil
}

// Close closes the entries channel. Safe to call more than once.
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	return nil
}

func (s *ChannelSink) Entries() <-chan LogEntry {
	return s.entries
}

// parseEntry turns one zap JSON line into a LogEntry.
func parseEntry(data []byte) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, err
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Scope:     "app",
		Fields:    make(map[string]any),
	}

	if msg, ok := raw["msg"].(string); ok {
		entry.Message = msg
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = ParseLevel(level)
	}
	if logger, ok := raw["logger"].(string); ok {
		entry.Scope = logger
	}
	if ts, ok := raw["ts"].(float64); ok {
		sec := int64(ts)
		entry.Timestamp = time.Unix(sec, int64((ts-float64(sec))*1e9))
	}

	for k, v := range raw {
		switch k {
		case "msg", "level", "logger", "ts", "caller", "stacktrace":
			continue
		}
		entry.Fields[k] = v
	}
	return entry, nil
}
