// pattern: Imperative Shell

package logging

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where logs go and how much is kept.
type Config struct {
	FilePath       string // rotated JSON log file
	MaxSizeMB      int    // rotate after this many megabytes
	MaxBackups     int    // rotated files to keep
	MaxAgeDays     int    // days to keep rotated files
	Level          string // debug, info, warn, error
	ChannelBufSize int    // entries buffered for the TUI log panel
}

// LoggerProvider hands out scoped loggers. Manager and TestLogManager both
// satisfy it, so components never depend on a concrete log backend.
type LoggerProvider interface {
	For(scope string) *ScopedLogger
}

// ScopedLogger is a slog front end over a named zap logger.
// A zero-value or nil-backed logger discards everything.
type ScopedLogger struct {
	slog  *slog.Logger
	scope string
}

func (l *ScopedLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *ScopedLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *ScopedLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *ScopedLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *ScopedLogger) log(level slog.Level, msg string, args []any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.Log(context.Background(), level, msg, args...)
}

// With returns a logger that adds the given key-value pairs to every entry.
func (l *ScopedLogger) With(args ...any) *ScopedLogger {
	if l == nil || l.slog == nil {
		return l
	}
	return &ScopedLogger{slog: l.slog.With(args...), scope: l.scope}
}

// Scope returns the dotted scope name, e.g. "relay" or "web.stream".
func (l *ScopedLogger) Scope() string {
	if l == nil {
		return ""
	}
	return l.scope
}

// scopeCache memoizes scoped loggers built from one zap base logger.
type scopeCache struct {
	base    *zap.Logger
	level   zapcore.Level
	mu      sync.RWMutex
	loggers map[string]*ScopedLogger
}

func newScopeCache(base *zap.Logger, level zapcore.Level) *scopeCache {
	return &scopeCache{base: base, level: level, loggers: make(map[string]*ScopedLogger)}
}

func (c *scopeCache) get(scope string) *ScopedLogger {
	c.mu.RLock()
	logger, ok := c.loggers[scope]
	c.mu.RUnlock()
	if ok {
		return logger
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if logger, ok := c.loggers[scope]; ok {
		return logger
	}

	logger = &ScopedLogger{
		slog:  slog.New(&zapSlogHandler{zap: c.base.Named(scope), level: c.level}),
		scope: scope,
	}
	c.loggers[scope] = logger
	return logger
}

func (c *scopeCache) forget(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for scope := range c.loggers {
		if strings.HasPrefix(scope, prefix) {
			delete(c.loggers, scope)
		}
	}
}

// Manager writes every entry twice: as JSON to a rotated file and, parsed,
// to a channel the TUI drains into its log panel.
type Manager struct {
	baseZap     *zap.Logger
	channelSink *ChannelSink
	fileWriter  *lumberjack.Logger
	scopes      *scopeCache
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("logging: FilePath is required")
	}
	if cfg.ChannelBufSize <= 0 {
		cfg.ChannelBufSize = 1000
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 7
	}

	level := parseZapLevel(cfg.Level)

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	channelSink := NewChannelSink(cfg.ChannelBufSize)

	enc := zapcore.NewJSONEncoder(encoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(fileWriter), level),
		zapcore.NewCore(enc.Clone(), zapcore.AddSync(channelSink), level),
	)
	baseZap := zap.New(core)

	return &Manager{
		baseZap:     baseZap,
		channelSink: channelSink,
		fileWriter:  fileWriter,
		scopes:      newScopeCache(baseZap, level),
	}, nil
}

// For returns the cached logger for scope, creating it on first use.
func (m *Manager) For(scope string) *ScopedLogger {
	return m.scopes.get(scope)
}

// Entries returns the channel of parsed entries for the TUI.
func (m *Manager) Entries() <-chan LogEntry {
	return m.channelSink.Entries()
}

// Sink exposes the channel sink so other producers can inject entries.
func (m *Manager) Sink() *ChannelSink {
	return m.channelSink
}

// Forget drops cached loggers whose scope starts with prefix.
func (m *Manager) Forget(prefix string) {
	m.scopes.forget(prefix)
}

func (m *Manager) Sync() error {
	return m.baseZap.Sync()
}

func (m *Manager) Close() error {
	_ = m.Sync()
	_ = m.channelSink.Close()
	return m.fileWriter.Close()
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.EpochTimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

func parseZapLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// zapSlogHandler adapts a zap.Logger to slog.Handler.
type zapSlogHandler struct {
	zap   *zap.Logger
	level zapcore.Level
	attrs []slog.Attr
}

func (h *zapSlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return slogToZap(level) >= h.level
}

func (h *zapSlogHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]zap.Field, 0, r.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		fields = append(fields, zap.Any(attr.Key, attr.Value.Any()))
	}
	r.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, zap.Any(attr.Key, attr.Value.Any()))
		return true
	})

	if ce := h.zap.Check(slogToZap(r.Level), r.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (h *zapSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &zapSlogHandler{zap: h.zap, level: h.level, attrs: merged}
}

func (h *zapSlogHandler) WithGroup(name string) slog.Handler {
	return &zapSlogHandler{zap: h.zap.Named(name), level: h.level, attrs: h.attrs}
}

func slogToZap(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
