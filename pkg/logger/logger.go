package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/circulation-backend/pkg/env"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures the structured logger. An empty Format falls back to
// CIRCULATION_LOG_FORMAT, then LOG_FORMAT, then json.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	Format      string
	WarnStack   bool
	Output      io.Writer
}

// Logger writes leveled entries enriched with the fields stored on the context.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type scopedKey struct{}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	root := zerolog.New(writerFor(opts)).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()

	return &Logger{root: root, warnStack: opts.WarnStack}
}

func writerFor(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = strings.ToLower(env.First("CIRCULATION_LOG_FORMAT", "LOG_FORMAT"))
	}
	if format == FormatConsole {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return out
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) scoped(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(scopedKey{}).(zerolog.Logger); ok {
			return entry
		}
	}
	return l.root
}

func (l *Logger) extend(ctx context.Context, add func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := add(l.scoped(ctx).With()).Logger()
	return context.WithValue(ctx, scopedKey{}, entry)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, value)
	})
}

// WithFields attaches fields in key order so entries render deterministically.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context {
		for _, key := range keys {
			c = c.Interface(key, fields[key])
		}
		return c
	})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("request_id", requestID)
	})
}

func (l *Logger) WithMemberID(ctx context.Context, memberID uuid.UUID) context.Context {
	return l.withID(ctx, "member_id", memberID)
}

func (l *Logger) WithLoanGroupID(ctx context.Context, loanGroupID uuid.UUID) context.Context {
	return l.withID(ctx, "loan_group_id", loanGroupID)
}

func (l *Logger) withID(ctx context.Context, key string, id uuid.UUID) context.Context {
	if id == uuid.Nil {
		return ctx
	}
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str(key, id.String())
	})
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	entry := l.scoped(ctx)
	entry.Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	entry := l.scoped(ctx)
	entry.Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	entry := l.scoped(ctx)
	event := entry.Warn()
	if l.warnStack {
		event = withStack(event)
	}
	event.Msg(msg)
}

// Error always records the stack of the calling goroutine.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	entry := l.scoped(ctx)
	event := entry.Error()
	if err != nil {
		event = event.Err(err)
	}
	withStack(event).Msg(msg)
}

func withStack(event *zerolog.Event) *zerolog.Event {
	return event.Str("stack", strings.TrimSpace(string(debug.Stack())))
}
