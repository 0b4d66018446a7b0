// pattern: Imperative Shell

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NopLogger returns a logger that discards all output.
func NopLogger() *ScopedLogger {
	return &ScopedLogger{}
}

// TestLogManager is a channel-only LoggerProvider for tests. It logs at
// debug level so assertions can see everything.
type TestLogManager struct {
	channelSink *ChannelSink
	scopes      *scopeCache
}

func NewTestLogManager(bufferSize int) *TestLogManager {
	sink := NewChannelSink(bufferSize)
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(sink),
		zapcore.DebugLevel,
	)
	return &TestLogManager{
		channelSink: sink,
		scopes:      newScopeCache(zap.New(core), zapcore.DebugLevel),
	}
}

func (m *TestLogManager) For(scope string) *ScopedLogger {
	return m.scopes.get(scope)
}

// Channel returns the entries written so far and any that follow.
func (m *TestLogManager) Channel() <-chan LogEntry {
	return m.channelSink.Entries()
}

// Drain returns the entries currently buffered without blocking.
func (m *TestLogManager) Drain() []LogEntry {
	var out []LogEntry
	for {
		select {
		case e, ok := <-m.channelSink.Entries():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func (m *TestLogManager) Close() error {
	return m.channelSink.Close()
}
