package log

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the rotating log file created under the log directory.
const LogFileName = "omniping.log"

// Logger wraps a zap logger with omniping's event helpers.
type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
}

// Config selects where and how verbosely the logger writes.
type Config struct {
	// Dir enables a rotating JSON log file; empty writes to stderr.
	Dir   string
	Level string
	// Discard drops entries that would otherwise go to stderr. It has no effect with Dir set.
	Discard bool
}

// New builds a JSON logger. With Dir set, output goes to a size-rotated file.
func New(cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	if cfg.Dir == "" && cfg.Discard {
		return &Logger{zl: zap.NewNop(), level: level}, nil
	}

	var w zapcore.WriteSyncer
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, err
		}
		w = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, LogFileName),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	} else {
		w = zapcore.Lock(os.Stderr)
	}

	return NewWithSyncer(w, level), nil
}

// NewWithSyncer builds a JSON logger writing to w.
func NewWithSyncer(w zapcore.WriteSyncer, level zap.AtomicLevel) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, level)
	return &Logger{zl: zap.New(core), level: level}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// Zap exposes the underlying logger for components that take *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{zl: l.zl.Named(component), level: l.level}
}

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zl.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zl.Error(msg, fields...) }

// LogProbeResult logs one probe outcome. Good results go to debug so a busy
// tick does not flood the log.
func (l *Logger) LogProbeResult(host, kind, status string, good bool, rtt time.Duration, err error) {
	fields := []zap.Field{
		zap.String("host", host),
		zap.String("test", kind),
		zap.String("status", status),
		zap.Bool("good", good),
	}
	if rtt > 0 {
		fields = append(fields, zap.Float64("rtt_ms", float64(rtt)/float64(time.Millisecond)))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	if good {
		l.Debug("probe result", fields...)
	} else {
		l.Warn("probe failed", fields...)
	}
}

// LogConfigLoad logs a target file load.
func (l *Logger) LogConfigLoad(success bool, path string, targets int, err error) {
	fields := []zap.Field{zap.String("path", path)}
	if success {
		l.Info("config loaded", append(fields, zap.Int("targets", targets))...)
		return
	}
	l.Error("config load failed", append(fields, zap.Error(err))...)
}

// LogError logs a component failure.
func (l *Logger) LogError(component string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("component", component), zap.Error(err))
	l.Error("error occurred", fields...)
}

// ParseLevel maps a level name to a zap level; unknown names fall back to info.
func ParseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
