package provisioning

import (
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapObserver implements Observer with structured zap logging.
type ZapObserver struct {
	logger *zap.Logger
}

// NewZapObserver wraps an existing zap logger.
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	return &ZapObserver{logger: logger}
}

// NewJSONLogger builds a production JSON logger at the given level.
func NewJSONLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Printf implements Logger.
func (o *ZapObserver) Printf(format string, v ...any) {
	o.logger.Info(fmt.Sprintf(format, v...))
}

// Event implements Observer.
func (o *ZapObserver) Event(event Event) {
	fields := make([]zap.Field, 0, len(event.Fields)+3)
	fields = append(fields, zap.String("event", string(event.Type)))
	if event.Phase != "" {
		fields = append(fields, zap.String("phase", event.Phase))
	}
	if event.Resource != "" {
		fields = append(fields, zap.String("resource", event.Resource))
	}
	for _, k := range slices.Sorted(maps.Keys(event.Fields)) {
		fields = append(fields, zap.String(k, event.Fields[k]))
	}
	if !event.Timestamp.IsZero() {
		fields = append(fields, zap.Time("at", event.Timestamp))
	}

	switch {
	case event.Type.IsFailure():
		o.logger.Error(event.Message, fields...)
	case event.Type == EventValidationWarning:
		o.logger.Warn(event.Message, fields...)
	case event.Type == EventProgress:
		o.logger.Debug(event.Message, fields...)
	default:
		o.logger.Info(event.Message, fields...)
	}
}

// Progress implements Observer.
func (o *ZapObserver) Progress(phase string, current, total int) {
	o.logger.Debug("progress", zap.String("phase", phase), zap.Int("current", current), zap.Int("total", total))
}

// WithFields implements Observer.
func (o *ZapObserver) WithFields(fields map[string]string) Observer {
	zf := make([]zap.Field, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		zf = append(zf, zap.String(k, fields[k]))
	}
	return &ZapObserver{logger: o.logger.With(zf...)}
}

// Sync flushes buffered log entries.
func (o *ZapObserver) Sync() error {
	return o.logger.Sync()
}
