package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options logger settings
type Options struct {
	Level       string // debug, info, warn, error (default info)
	Format      string // json or console (default json)
	ServiceName string
	// File enables a rotating file sink next to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger builds a zap logger with service_name and hostname fields.
func NewLogger(level string, format string, serviceName string) (*zap.Logger, error) {
	return New(Options{Level: level, Format: format, ServiceName: serviceName})
}

// New builds a zap logger from Options
func New(opts Options) (*zap.Logger, error) {
	zapLevel := parseLevel(opts.Level)

	var config zap.Config
	if opts.Format == "console" {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	}

	baseLogger, err := config.Build()
	if err != nil {
		return nil, err
	}

	if opts.File != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(config.EncoderConfig),
			zapcore.AddSync(newRotatingWriter(opts)),
			config.Level,
		)
		baseLogger = baseLogger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	if opts.ServiceName != "" {
		baseLogger = baseLogger.With(zap.String("service_name", opts.ServiceName))
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		baseLogger = baseLogger.With(zap.String("hostname", hostname))
	}

	return baseLogger, nil
}

// NewDevelopmentLogger console logger for local runs
func NewDevelopmentLogger() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newRotatingWriter(opts Options) *lumberjack.Logger {
	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	if w.MaxSize <= 0 {
		w.MaxSize = 50
	}
	if w.MaxBackups <= 0 {
		w.MaxBackups = 5
	}
	if w.MaxAge <= 0 {
		w.MaxAge = 30
	}
	return w
}
