package log

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using zerolog.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

// NewConsoleLogger creates a human-readable zerolog logger writing to w.
func NewConsoleLogger(w io.Writer, level zerolog.Level) *ZerologLogger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &ZerologLogger{logger: logger}
}

// Debug logs a debug-level message.
func (z *ZerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	addFields(z.logger.Debug(), keysAndValues).Msg(msg)
}

// Info logs an info-level message.
func (z *ZerologLogger) Info(msg string, keysAndValues ...interface{}) {
	addFields(z.logger.Info(), keysAndValues).Msg(msg)
}

// Warn logs a warning-level message.
func (z *ZerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	addFields(z.logger.Warn(), keysAndValues).Msg(msg)
}

// Error logs an error-level message.
func (z *ZerologLogger) Error(msg string, keysAndValues ...interface{}) {
	addFields(z.logger.Error(), keysAndValues).Msg(msg)
}

// Logger returns the underlying zerolog.Logger.
func (z *ZerologLogger) Logger() zerolog.Logger {
	return z.logger
}

// addFields attaches alternating key/value pairs to a zerolog event.
// A trailing key without a value is logged under "!BADKEY".
func addFields(event *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		if i+1 >= len(keysAndValues) {
			event = event.Interface("!BADKEY", key)
			break
		}
		switch v := keysAndValues[i+1].(type) {
		case string:
			event = event.Str(key, v)
		case int:
			event = event.Int(key, v)
		case int64:
			event = event.Int64(key, v)
		case bool:
			event = event.Bool(key, v)
		case time.Duration:
			event = event.Dur(key, v)
		case error:
			event = event.AnErr(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	return event
}
