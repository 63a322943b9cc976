package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"txindexer/pkg/logging"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
	Sync() error

	DebugwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{})

	// With returns a child logger that adds keysAndValues to every entry.
	With(keysAndValues ...interface{}) Logger
}

type Options struct {
	Level       string
	Format      string
	ServiceName string
}

type SugaredLogger struct {
	sugar       *zap.SugaredLogger
	serviceName string
}

func New(opts Options) (Logger, error) {
	cfg := zap.NewProductionConfig()

	cfg.Encoding = "json"
	if opts.Format == "console" {
		cfg.Encoding = "console"
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &SugaredLogger{
		sugar:       zapLogger.Sugar(),
		serviceName: opts.ServiceName,
	}, nil
}

// NewFromCore wraps an existing zap core, e.g. zaptest/observer in tests.
func NewFromCore(core zapcore.Core, serviceName string) Logger {
	return &SugaredLogger{
		sugar:       zap.New(core).Sugar(),
		serviceName: serviceName,
	}
}

func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func (l *SugaredLogger) Debug(args ...interface{})                   { l.sugar.Debug(args...) }
func (l *SugaredLogger) Debugf(template string, args ...interface{}) { l.sugar.Debugf(template, args...) }
func (l *SugaredLogger) Debugw(msg string, kv ...interface{})        { l.sugar.Debugw(msg, kv...) }
func (l *SugaredLogger) Info(args ...interface{})                    { l.sugar.Info(args...) }
func (l *SugaredLogger) Infof(template string, args ...interface{})  { l.sugar.Infof(template, args...) }
func (l *SugaredLogger) Infow(msg string, kv ...interface{})         { l.sugar.Infow(msg, kv...) }
func (l *SugaredLogger) Warn(args ...interface{})                    { l.sugar.Warn(args...) }
func (l *SugaredLogger) Warnf(template string, args ...interface{})  { l.sugar.Warnf(template, args...) }
func (l *SugaredLogger) Warnw(msg string, kv ...interface{})         { l.sugar.Warnw(msg, kv...) }
func (l *SugaredLogger) Error(args ...interface{})                   { l.sugar.Error(args...) }
func (l *SugaredLogger) Errorf(template string, args ...interface{}) { l.sugar.Errorf(template, args...) }
func (l *SugaredLogger) Errorw(msg string, kv ...interface{})        { l.sugar.Errorw(msg, kv...) }
func (l *SugaredLogger) Fatal(args ...interface{})                   { l.sugar.Fatal(args...) }
func (l *SugaredLogger) Fatalf(template string, args ...interface{}) { l.sugar.Fatalf(template, args...) }
func (l *SugaredLogger) Sync() error                                 { return l.sugar.Sync() }

func (l *SugaredLogger) With(keysAndValues ...interface{}) Logger {
	return &SugaredLogger{
		sugar:       l.sugar.With(keysAndValues...),
		serviceName: l.serviceName,
	}
}

func (l *SugaredLogger) DebugwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	fields := l.getContextFields(ctx)
	l.sugar.Debugw(msg, append(fields, keysAndValues...)...)
}

func (l *SugaredLogger) InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	fields := l.getContextFields(ctx)
	l.sugar.Infow(msg, append(fields, keysAndValues...)...)
}

func (l *SugaredLogger) WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	fields := l.getContextFields(ctx)
	l.sugar.Warnw(msg, append(fields, keysAndValues...)...)
}

func (l *SugaredLogger) ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	fields := l.getContextFields(ctx)
	l.sugar.Errorw(msg, append(fields, keysAndValues...)...)
}

func (l *SugaredLogger) getContextFields(ctx context.Context) []interface{} {
	fields := logging.GetLogFields(ctx)

	if l.serviceName != "" && logging.GetServiceName(ctx) == "" {
		fields = append(fields, logging.ServiceNameKey, l.serviceName)
	}

	return fields
}

func NopLogger() Logger {
	return &SugaredLogger{
		sugar: zap.NewNop().Sugar(),
	}
}
