// Package logger wraps zerolog with context-carried fields. Services attach request, staff
// and order identifiers to a context once and every entry logged with it carries them.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"

	redacted = "[redacted]"
)

// Field names whose values never reach the log output, matched case-insensitively.
var sensitiveFields = map[string]struct{}{
	"password":       {},
	"override_token": {},
	"authorization":  {},
	"token":          {},
	"client_secret":  {},
	"signing_secret": {},
	"proof_image":    {},
}

// Options configures the structured logger. Format is FormatJSON unless set to FormatConsole,
// which is meant for local development and the doorctl terminal.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	Format      string
	WarnStack   bool
	Output      io.Writer
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return &Logger{
		base:      zerolog.New(out).Level(opts.Level).With().Timestamp().Str("service", opts.ServiceName).Logger(),
		warnStack: opts.WarnStack,
	}
}

// ParseLevel falls back to info for empty or unknown names.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) entry(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if e, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
			return e
		}
	}
	return l.base
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

// WithFields returns a context whose entries carry fields. Keys are applied in sorted order
// so output is stable; sensitive keys are masked.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	with := l.entry(ctx).With()
	for _, k := range keys {
		if _, secret := sensitiveFields[strings.ToLower(k)]; secret {
			with = with.Str(k, redacted)
			continue
		}
		with = with.Interface(k, fields[k])
	}
	return context.WithValue(ctx, ctxKey{}, with.Logger())
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

// WithStaff tags entries with the staff member and role acting on the request.
func (l *Logger) WithStaff(ctx context.Context, staff, role string) context.Context {
	return l.WithFields(ctx, map[string]any{"staff": staff, "actor_role": role})
}

func (l *Logger) WithOrderNumber(ctx context.Context, orderNumber string) context.Context {
	return l.WithField(ctx, "order_number", orderNumber)
}

func (l *Logger) WithTicketID(ctx context.Context, ticketID string) context.Context {
	return l.WithField(ctx, "ticket_id", ticketID)
}

// WithReservation tags entries with the stock hold being created, confirmed or reaped.
func (l *Logger) WithReservation(ctx context.Context, reservationID, reference string) context.Context {
	return l.WithFields(ctx, map[string]any{"reservation_id": reservationID, "reservation_ref": reference})
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	e := l.entry(ctx)
	e.Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	e := l.entry(ctx)
	e.Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	e := l.entry(ctx)
	ev := e.Warn()
	if l.warnStack {
		ev = ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

// Error logs err with its code. Client errors (validation, auth, conflicts) skip the stack
// trace; anything retryable or untyped gets one.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	e := l.entry(ctx)
	ev := e.Error()
	if err == nil {
		ev.Str("stack", stack()).Msg(msg)
		return
	}
	ev = ev.Err(err)
	if typed := pkgerrors.As(err); typed != nil {
		ev = ev.Str("error_code", string(typed.Code()))
	}
	if pkgerrors.IsRetryable(err) {
		ev = ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
