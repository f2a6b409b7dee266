package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config describes how the zap logger is built.
// Level is one of "debug", "info", "warn", "error"; DevMode switches to the
// human-readable console encoder.
type Config struct {
	Level   string
	DevMode bool
}

// ZapLogger adapts a zap.SugaredLogger to Logger.
type ZapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// New builds a zap logger from cfg.
func New(cfg Config) (*ZapLogger, func(), error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
	}

	zc := buildZapConfig(cfg.DevMode)
	zc.Level = zap.NewAtomicLevelAt(lvl)

	zl, err := zc.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("logging: build zap: %w", err)
	}
	return NewZapLogger(zl), func() { _ = zl.Sync() }, nil
}

func buildZapConfig(dev bool) zap.Config {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.StacktraceKey = "stacktrace"
	}
	ec := &cfg.EncoderConfig
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.CallerKey = "caller"
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return cfg
}

// NewNop returns a Logger that discards everything.
func NewNop() *ZapLogger {
	return NewZapLogger(zap.NewNop())
}

func (z *ZapLogger) Debug(ctx context.Context, msg string, args ...any) {
	z.withContext(ctx).Debugw(msg, args...)
}

func (z *ZapLogger) Info(ctx context.Context, msg string, args ...any) {
	z.withContext(ctx).Infow(msg, args...)
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, args ...any) {
	z.withContext(ctx).Warnw(msg, args...)
}

func (z *ZapLogger) Error(ctx context.Context, msg string, args ...any) {
	z.withContext(ctx).Errorw(msg, args...)
}

func (z *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{l: z.l.With(args...)}
}

func (z *ZapLogger) withContext(ctx context.Context) *zap.SugaredLogger {
	if ctx == nil {
		return z.l
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		return z.l.With(string(requestIDKey), id)
	}
	return z.l
}
