package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/marketdesk/internal/config"
	"github.com/pitabwire/marketdesk/model"
)

type loggerKey struct{}

// NewLogger returns the process logger: JSON lines on stdout, each tagged
// with the service and build. An unknown level falls back to info.
//
// Levels: error for infrastructure faults and 5xx answers, warn for
// marketplace rejections and failed imports, info for view lifecycle and
// reloads, debug for fetch sequencing and discarded results.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig = enc
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.InitialFields = map[string]any{
		"service": ServiceName,
		"version": Version,
		"commit":  Commit,
	}
	return zcfg.Build()
}

// WithLogger stores a request-scoped logger in ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns LoggerFrom(ctx, fallback) annotated with the admin
// and request identifiers of the RequestContext in ctx, if any.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("subject_id", rctx.SubjectID),
		zap.String("correlation_id", rctx.CorrelationID),
	}
	for key, val := range map[string]string{
		"session_id": rctx.SessionID,
		"trace_id":   rctx.TraceID,
	} {
		if val != "" {
			fields = append(fields, zap.String(key, val))
		}
	}
	return logger.With(fields...)
}
