// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages through a zap core.  Verbosity gating
// happens here so the familiar -v/-vv/-vvv counting keeps working no
// matter how the underlying core is configured.
type Logger struct {
	level      LogLevel
	base       *zap.Logger
	sugar      *zap.SugaredLogger
	output     io.Writer
	timestamps bool
}

// NewLogger returns a Logger that prints console-formatted messages to
// stderr at or below the given verbosity (0 = quiet, 1 = normal,
// 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return FromZap(zap.NewNop(), int(LogQuiet))
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger, verbosity int) *Logger {
	return &Logger{level: LogLevel(verbosity), base: z, sugar: z.Sugar()}
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Zap exposes the underlying zap logger for structured fields.
func (l *Logger) Zap() *zap.Logger { return l.base }

// Named returns a child logger with the given name segment appended.
func (l *Logger) Named(name string) *Logger {
	return l.derive(l.base.Named(name))
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(kv ...interface{}) *Logger {
	return l.derive(l.sugar.With(kv...).Desugar())
}

// Sync flushes buffered output.
func (l *Logger) Sync() error { return l.base.Sync() }

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.sugar.Infof(format, args...)
	}
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.sugar.Warnf(format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Emitted at info level.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.sugar.Infof(format, args...)
	}
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.sugar.Debugf(format, args...)
	}
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *Logger) derive(z *zap.Logger) *Logger {
	return &Logger{
		level:      l.level,
		base:       z,
		sugar:      z.Sugar(),
		output:     l.output,
		timestamps: l.timestamps,
	}
}

// rebuild replaces the core after an output or timestamp change.
func (l *Logger) rebuild() {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.CallerKey = zapcore.OmitKey
	enc.StacktraceKey = zapcore.OmitKey
	if l.timestamps {
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	} else {
		enc.TimeKey = zapcore.OmitKey
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(l.output), zap.DebugLevel)
	l.base = zap.New(core)
	l.sugar = l.base.Sugar()
}

// ── Production setup ─────────────────────────────────────────────────

// LogConfig describes how the daemon logger is assembled.
type LogConfig struct {
	Verbose     int            `yaml:"verbose"`
	Format      string         `yaml:"format"`  // "console" or "json"
	Outputs     []string       `yaml:"outputs"` // stdout, stderr or file paths
	Development bool           `yaml:"development"`
	Rotation    RotationConfig `yaml:"rotation"`
}

// RotationConfig enables lumberjack rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `yaml:"enable"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// SetupLogger builds a Logger from c, installs it as the global zap
// logger, and redirects the stdlib log package.  The caller should defer
// Sync.
func SetupLogger(c LogConfig) (*Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	if c.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(c.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	var cores []zapcore.Core
	for _, out := range outputs {
		ws, err := writeSyncer(out, c.Rotation)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, zap.DebugLevel))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.Development())
	}

	z := zap.New(zapcore.NewTee(cores...), opts...)
	zap.ReplaceGlobals(z)
	_, _ = zap.RedirectStdLogAt(z, zap.InfoLevel)
	return FromZap(z, c.Verbose), nil
}

func writeSyncer(out string, rot RotationConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	if rot.Enable {
		name := out
		if strings.TrimSpace(rot.Filename) != "" {
			name = rot.Filename
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   name,
			MaxSize:    atLeast(rot.MaxSizeMB, 10),
			MaxBackups: atLeast(rot.MaxBackups, 1),
			MaxAge:     atLeast(rot.MaxAgeDays, 7),
			Compress:   rot.Compress,
		}), nil
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file %s: %w", out, err)
	}
	return zapcore.AddSync(f), nil
}

func atLeast(v, floor int) int {
	if v > floor {
		return v
	}
	return floor
}
