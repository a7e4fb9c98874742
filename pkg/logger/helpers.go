package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CollectionFields returns the standard field set for one (subject, kind) run
func CollectionFields(subject, kind, runToken string) map[string]interface{} {
	return map[string]interface{}{
		"subject":   subject,
		"kind":      kind,
		"run_token": runToken,
	}
}

// LogCollectionStart logs the beginning of a collection run
func LogCollectionStart(l Logger, subject, kind, runToken string, estimate, seeded int) {
	fields := CollectionFields(subject, kind, runToken)
	fields["estimate"] = estimate
	fields["seeded"] = seeded
	l.InfoWithFields("collection started", fields)
}

// LogCollectionProgress logs periodic progress of a run
func LogCollectionProgress(l Logger, subject, kind string, collected, estimate int) {
	l.DebugWithFields("collection progress", map[string]interface{}{
		"subject":   subject,
		"kind":      kind,
		"collected": collected,
		"estimate":  estimate,
	})
}

// LogCollectionEnd logs the outcome of a run at a level matching its status
func LogCollectionEnd(l Logger, subject, kind, runToken, status string, collected int, elapsed time.Duration, err error) {
	fields := CollectionFields(subject, kind, runToken)
	fields["status"] = status
	fields["collected"] = collected
	fields["elapsed"] = elapsed
	if err != nil {
		fields["error"] = err.Error()
	}

	switch status {
	case "complete":
		l.InfoWithFields("collection finished", fields)
	case "failed":
		l.ErrorWithFields("collection failed", fields)
	default:
		l.WarnWithFields("collection stopped early", fields)
	}
}

// LogThrottle logs a throttling signal from the upstream
func LogThrottle(l Logger, subject, kind string, cooldown time.Duration, err error) {
	l.WarnWithFields("upstream throttled the collection", map[string]interface{}{
		"subject":  subject,
		"kind":     kind,
		"cooldown": cooldown,
		"error":    err.Error(),
	})
}

// LogStorage logs a store operation failure
func LogStorage(l Logger, operation, subject string, err error) {
	l.ErrorWithFields("storage operation failed", map[string]interface{}{
		"operation": operation,
		"subject":   subject,
		"error":     err.Error(),
	})
}

// LogComponentStart logs component initialization
func LogComponentStart(component string, cfg map[string]interface{}) {
	fields := map[string]interface{}{"component": component}
	for k, v := range cfg {
		fields[k] = v
	}
	GetLogger().InfoWithFields("component starting", fields)
}

// LogComponentStop logs component shutdown
func LogComponentStop(component string, reason string) {
	GetLogger().InfoWithFields("component stopping", map[string]interface{}{
		"component": component,
		"reason":    reason,
	})
}

// NewNopLogger returns a logger that does nothing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
