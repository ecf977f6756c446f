package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatPretty  = "pretty"
	FormatConsole = "console"
)

// Logger is a zerolog.Logger tagged with the service it belongs to.
// Values are immutable; the With* methods return derived loggers.
type Logger struct {
	zl      zerolog.Logger
	service string
}

var global atomic.Pointer[Logger]

// Init builds the process logger from cfg and makes it the global one.
// Named loggers registered before Init keep their old settings; call
// RegisterDefaults afterwards.
func Init(cfg Config) {
	cfg.ApplyDefaults()
	service := cfg.ServiceName
	if service == "" {
		service = "default"
	}
	l := New(&cfg, service)
	global.Store(l)
	log.Logger = l.zl
}

// New creates a logger writing to cfg.Output.
func New(cfg *Config, service string) *Logger {
	return NewWithWriter(cfg, service, outputWriter(cfg.Output))
}

// NewWithWriter creates a logger that writes to w. Tests use it to capture
// log lines.
func NewWithWriter(cfg *Config, service string, w io.Writer) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var zl zerolog.Logger
	if isConsole(cfg.Format) {
		zl = zerolog.New(consoleWriter(cfg, service, w))
	} else {
		zl = zerolog.New(w).With().Str("service", service).Logger()
	}
	zl = zl.Level(level)

	ctx := zl.With()
	if cfg.Timestamp || isConsole(cfg.Format) {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return &Logger{zl: ctx.Logger(), service: service}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), service: "nop"}
}

// GetGlobalLogger returns the logger set by Init, or a console logger at
// info level if Init has not run.
func GetGlobalLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l := New(&Config{Level: "info", Format: FormatConsole}, "default")
	if global.CompareAndSwap(nil, l) {
		return l
	}
	return global.Load()
}

type contextKey string

// contextFields are the keys WithContext copies from a context.
var contextFields = []string{FieldTraceID, FieldSpanID, FieldRequestID, FieldSubscriptionID, FieldStream}

// ContextWith returns a copy of ctx carrying a log field that WithContext
// will pick up. Only the keys listed in contextFields are recognised.
func ContextWith(ctx context.Context, field, value string) context.Context {
	return context.WithValue(ctx, contextKey(field), value)
}

// WithContext adds the trace, request and stream IDs found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zc := l.zl.With()
	for _, field := range contextFields {
		if v, ok := ctx.Value(contextKey(field)).(string); ok && v != "" {
			zc = zc.Str(field, v)
		}
	}
	return &Logger{zl: zc.Logger(), service: l.service}
}

// WithComponent tags every line with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str(FieldComponent, name).Logger(), service: l.service}
}

// WithFields attaches fields to every line.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger(), service: l.service}
}

// Enabled reports whether messages at level would be written. Hot paths use
// it to skip building field maps.
func (l *Logger) Enabled(level zerolog.Level) bool {
	return l.zl.GetLevel() <= level && zerolog.GlobalLevel() <= level
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Error(), msg, fields)
}

// emit is a no-op for disabled levels: zerolog returns a nil event.
func emit(event *zerolog.Event, msg string, fields []map[string]interface{}) {
	if event == nil {
		return
	}
	for _, fm := range fields {
		event.Fields(fm)
	}
	event.Msg(msg)
}

func isConsole(format string) bool {
	f := strings.ToLower(format)
	return f == FormatConsole || f == FormatPretty
}

func outputWriter(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// levelTags are the short console level markers and their ANSI colours.
var levelTags = map[string]struct{ tag, color string }{
	"TRACE": {"TRC", "90"},
	"DEBUG": {"DBG", "36"},
	"INFO":  {"INF", "32"},
	"WARN":  {"WRN", "33"},
	"ERROR": {"ERR", "31"},
	"FATAL": {"FTL", "35"},
}

// consoleWriter renders "[SVC][LVL] message key:value" lines, where SVC is
// the first three letters of the service name.
func consoleWriter(cfg *Config, service string, w io.Writer) zerolog.ConsoleWriter {
	paint := func(s, color string) string {
		if cfg.NoColor {
			return s
		}
		return "\033[" + color + "m" + s + "\033[0m"
	}
	prefix := ""
	if service != "default" && len(service) >= 3 {
		prefix = paint("["+strings.ToUpper(service[:3])+"]", "34")
	}

	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    cfg.NoColor,
		FormatLevel: func(i interface{}) string {
			lvl := strings.ToUpper(fmt.Sprint(i))
			t, ok := levelTags[lvl]
			if !ok {
				return prefix + "[" + lvl + "]"
			}
			return prefix + paint("["+t.tag+"]", t.color)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		},
		FormatFieldValue: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		},
	}
}
