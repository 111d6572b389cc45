package common

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

// LogOptions configures NewLogger. An empty Directory logs to Console only.
type LogOptions struct {
	Directory  string
	Filename   string
	Level      string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
	Console    io.Writer
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		NameKey:     "logger",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

func parseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// NewLogger builds a JSON logger that writes to the console and, when a
// directory is configured, to a size-rotated file. The returned closer
// flushes and closes the rotating file.
func NewLogger(opts LogOptions, fields ...zap.Field) (*zap.Logger, func() error, error) {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	sinks := []zapcore.WriteSyncer{zapcore.AddSync(console)}
	closeFn := func() error { return nil }
	if opts.Directory != "" {
		if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		name := opts.Filename
		if name == "" {
			name = "bmffgate.log"
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Directory, name),
			MaxSize:    opts.MaxSizeMB,
			MaxAge:     opts.MaxAgeDays,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
		}
		sinks = append(sinks, zapcore.AddSync(rotator))
		closeFn = rotator.Close
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.NewMultiWriteSyncer(sinks...),
		lvl,
	)
	logger := zap.New(core).With(fields...)
	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}
