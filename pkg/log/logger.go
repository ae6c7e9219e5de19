package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	perrors "github.com/immoeliza/pricetune/pkg/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ZerologLogger is the default Logger backed by zerolog.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger creates a Logger writing to w at the given minimum level.
// format is "json" or "console".
func NewZerologLogger(w io.Writer, level Level, format string) *ZerologLogger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	zl := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &ZerologLogger{zl: zl}
}

func (l *ZerologLogger) Debug(msg string, fields ...any) { l.emit(l.zl.Debug(), msg, fields) }
func (l *ZerologLogger) Info(msg string, fields ...any)  { l.emit(l.zl.Info(), msg, fields) }
func (l *ZerologLogger) Warn(msg string, fields ...any)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *ZerologLogger) Error(msg string, fields ...any) { l.emit(l.zl.Error(), msg, fields) }

// With implements Logger.With.
func (l *ZerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		if err, ok := fields[i+1].(error); ok {
			ctx = ctx.Str(key, err.Error())
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &ZerologLogger{zl: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

func (l *ZerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	// A leading error is the Error(msg, err, ...) calling convention.
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			attachError(ev, err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case error:
			attachError(ev, v)
		case zerolog.LogObjectMarshaler:
			ev.Object(key, v)
		default:
			ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

func attachError(ev *zerolog.Event, err error) {
	ev.Str(ErrAttrKey, err.Error())
	if m, ok := findMarshaler(err); ok {
		ev.Object("error_detail", m)
	}
	if st := extractStacktrace(err); st != "" {
		ev.Str(StacktraceAttrKey, st)
	}
}

// findMarshaler returns the first error in the chain that knows how to log itself.
func findMarshaler(err error) (zerolog.LogObjectMarshaler, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if m, ok := e.(zerolog.LogObjectMarshaler); ok {
			return m, true
		}
	}
	return nil, false
}

func extractStacktrace(err error) string {
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		details := errors.GetSafeDetails(e)
		if len(details.SafeDetails) > 0 && strings.Contains(details.SafeDetails[0], "\n") {
			return details.SafeDetails[0]
		}
	}
	return ""
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ToLogLevel parses "debug", "info", "warn" or "error".
func ToLogLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, perrors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
}

// ===========================================================================
// provider
// ===========================================================================

var (
	providerMu sync.RWMutex
	defaultLog Logger = NewZerologLogger(os.Stderr, LevelInfo, "json")
)

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultLog
}

// GetLoggerWithName returns the process-wide logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// SetLogger replaces the process-wide logger and routes library warnings to it.
func SetLogger(l Logger) {
	providerMu.Lock()
	defaultLog = l
	providerMu.Unlock()

	perrors.SetZerologWarnFunc(func(w error) {
		l.Warn("Warning", w)
	})
}

// SetupLogger configures the process-wide logger from a level name and format.
func SetupLogger(level, format string, w io.Writer) error {
	lv, err := ToLogLevel(level)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}
	SetLogger(NewZerologLogger(w, lv, format))
	return nil
}
