package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/histboost/pkg/errors"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo)
)

// SetProvider replaces the process-wide provider used by GetLogger.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// GetLogger returns the root logger of the current provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with ComponentKey=name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetLevel sets the minimum level on the current provider.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	provider.SetLevel(level)
}

// SetupLogger installs a provider writing to stderr. format is "json"
// (default), "console" for human-readable zerolog output, or "text" for the
// log/slog text handler.
func SetupLogger(level, format string) error {
	lvl, err := ToLogLevel(level)
	if err != nil {
		return err
	}
	switch format {
	case "", "json":
		SetProvider(NewZerologProvider(os.Stderr, lvl))
	case "console":
		SetProvider(NewZerologProvider(zerolog.ConsoleWriter{Out: os.Stderr}, lvl))
	case "text":
		SetProvider(NewSlogProvider(os.Stderr, lvl))
	default:
		return errors.NewValidationError("log_format", "must be json, console or text", format)
	}
	return nil
}

// ToLogLevel parses "debug", "info", "warn" or "error".
func ToLogLevel(level string) (Level, error) {
	switch level {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log_level", "must be debug, info, warn or error", level)
	}
}

// ZerologProvider is the default LoggerProvider. Every logger it hands out
// shares the provider's level, so SetLevel applies to loggers already in use.
type ZerologProvider struct {
	base  zerolog.Logger
	level atomic.Int64
}

// NewZerologProvider creates a provider writing JSON lines to w.
func NewZerologProvider(w io.Writer, level Level) *ZerologProvider {
	p := &ZerologProvider{
		base: zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger(),
	}
	p.level.Store(int64(level))
	return p
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.base, p: p}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger(), p: p}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int64(level))
}

type zerologLogger struct {
	zl zerolog.Logger
	p  *ZerologProvider
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.log(LevelDebug, msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.log(LevelInfo, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.log(LevelWarn, msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.log(LevelError, msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	forEachField(fields, func(key string, value any) {
		if err, ok := value.(error); ok {
			ctx = ctx.Str(key, err.Error())
			return
		}
		ctx = ctx.Interface(key, value)
	})
	return &zerologLogger{zl: ctx.Logger(), p: l.p}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return int64(level) >= l.p.level.Load()
}

func (l *zerologLogger) log(level Level, msg string, fields []any) {
	if !l.Enabled(context.Background(), level) {
		return
	}
	e := l.zl.WithLevel(toZerologLevel(level))
	forEachField(fields, func(key string, value any) {
		if err, ok := value.(error); ok {
			e = e.AnErr(key, err)
			if st := extractStacktrace(err); st != "" {
				e = e.Str(StacktraceAttrKey, st)
			}
			return
		}
		e = e.Interface(key, value)
	})
	e.Msg(msg)
}

// forEachField walks alternating key/value pairs. A leading error without a
// key is logged under ErrAttrKey and an unpaired trailing value under
// "!BADKEY", matching log/slog.
func forEachField(fields []any, fn func(key string, value any)) {
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			fn(ErrAttrKey, err)
			fields = fields[1:]
		}
	}
	for i := 0; i < len(fields); i += 2 {
		if attr, ok := fields[i].(slog.Attr); ok {
			fn(attr.Key, attr.Value.Any())
			i--
			continue
		}
		if i+1 >= len(fields) {
			fn("!BADKEY", fields[i])
			return
		}
		fn(fmt.Sprint(fields[i]), fields[i+1])
	}
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

// ErrAttr is a helper to pass err to a slog.Logger.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
