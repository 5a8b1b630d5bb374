package observability

import (
	"fmt"

	"github.com/rs/zerolog"
)

// TemporalLogger bridges the Temporal SDK's log.Logger interface onto
// zerolog so SDK-internal log lines share the service's structured output.
type TemporalLogger struct {
	logger zerolog.Logger
}

// NewTemporalLogger wraps logger with a "component":"temporal-sdk" field and
// returns an adapter suitable for client.Options.Logger.
func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.emit(l.logger.Debug(), msg, keyvals)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.emit(l.logger.Info(), msg, keyvals)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.emit(l.logger.Warn(), msg, keyvals)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.emit(l.logger.Error(), msg, keyvals)
}

// emit attaches the SDK's alternating key-value pairs as structured fields.
// Non-string keys and a trailing unpaired value are stringified rather than
// dropped so no SDK diagnostics are lost.
func (l *TemporalLogger) emit(ev *zerolog.Event, msg string, keyvals []interface{}) {
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		if i+1 < len(keyvals) {
			ev = ev.Interface(key, keyvals[i+1])
		} else {
			ev = ev.Str("extra", key)
		}
	}
	ev.Msg(msg)
}
