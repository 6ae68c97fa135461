// Package logging provides the structured logger shared by the server,
// the refresh jobs and the command line tools.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

func (l LogLevel) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	case LevelFatal:
		return 4
	default:
		return 1
	}
}

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Logger writes leveled entries carrying a fixed set of context fields.
// Derived loggers share the writer of their parent.
type Logger struct {
	level  LogLevel
	format LogFormat
	sink   *sink
	fields map[string]interface{}
	exit   func(int)
}

type sink struct {
	mu sync.Mutex
	w  io.Writer
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// NewLogger creates a logger writing to stdout
func NewLogger(level LogLevel, format LogFormat) *Logger {
	return &Logger{
		level:  level,
		format: format,
		sink:   &sink{w: os.Stdout},
		fields: map[string]interface{}{},
		exit:   os.Exit,
	}
}

// New builds a logger from the LOG_LEVEL / LOG_FORMAT strings
func New(level, format string) *Logger {
	return NewLogger(ParseLogLevel(level), ParseLogFormat(format))
}

func (l *Logger) derive(extra map[string]interface{}) *Logger {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &Logger{level: l.level, format: l.format, sink: l.sink, fields: fields, exit: l.exit}
}

// WithField returns a logger with one extra context field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(map[string]interface{}{key: value})
}

// WithFields returns a logger with extra context fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(fields)
}

// WithError attaches err under the "error" field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// WithComponent tags entries with the emitting subsystem
func (l *Logger) WithComponent(name string) *Logger {
	return l.WithField("component", name)
}

func (l *Logger) Debug(message string) { l.log(LevelDebug, message) }
func (l *Logger) Info(message string)  { l.log(LevelInfo, message) }
func (l *Logger) Warn(message string)  { l.log(LevelWarn, message) }
func (l *Logger) Error(message string) { l.log(LevelError, message) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

// ErrorWithErr logs message at error level with err attached
func (l *Logger) ErrorWithErr(message string, err error) {
	l.WithError(err).log(LevelError, message)
}

// Fatal logs and terminates the process
func (l *Logger) Fatal(message string) {
	l.log(LevelFatal, message)
	l.exit(1)
}

// Fatalf logs a formatted message and terminates the process
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(LevelFatal, fmt.Sprintf(format, args...))
	l.exit(1)
}

func (l *Logger) log(level LogLevel, message string) {
	if level.rank() < l.level.rank() {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    l.fields,
	}

	if level.rank() >= LevelError.rank() {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	var line string
	if l.format == FormatText {
		line = formatText(entry)
	} else {
		b, err := json.Marshal(entry)
		if err != nil {
			b, _ = json.Marshal(LogEntry{Timestamp: entry.Timestamp, Level: entry.Level, Message: message})
		}
		line = string(b)
	}

	l.sink.mu.Lock()
	fmt.Fprintln(l.sink.w, line)
	l.sink.mu.Unlock()
}

func formatText(entry LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", entry.Timestamp, entry.Level, entry.Message)
	if len(entry.Fields) > 0 {
		fieldsJSON, _ := json.Marshal(entry.Fields)
		fmt.Fprintf(&b, " fields=%s", fieldsJSON)
	}
	if entry.Caller != "" {
		fmt.Fprintf(&b, " caller=%s", entry.Caller)
	}
	return b.String()
}

// SetOutput redirects this logger and every logger derived from it
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.w = w
	l.sink.mu.Unlock()
}

// SetLevel sets the minimum level written
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitGlobalLogger replaces the process-wide logger
func InitGlobalLogger(level LogLevel, format LogFormat) *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = NewLogger(level, format)
	return globalLogger
}

// GetGlobalLogger returns the process-wide logger, creating an info/json one on first use
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	return InitGlobalLogger(LevelInfo, FormatJSON)
}

type loggerKey struct{}

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request-scoped logger, or the global one
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
			return logger
		}
	}
	return GetGlobalLogger()
}

// ParseLogLevel maps a config string to a LogLevel, defaulting to info
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// ParseLogFormat maps a config string to a LogFormat, defaulting to json
func ParseLogFormat(format string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return FormatText
	}
	return FormatJSON
}

// WithField derives from the global logger
func WithField(key string, value interface{}) *Logger {
	return GetGlobalLogger().WithField(key, value)
}

// WithFields derives from the global logger
func WithFields(fields map[string]interface{}) *Logger {
	return GetGlobalLogger().WithFields(fields)
}

// WithError derives from the global logger
func WithError(err error) *Logger {
	return GetGlobalLogger().WithError(err)
}

// WithComponent derives from the global logger
func WithComponent(name string) *Logger {
	return GetGlobalLogger().WithComponent(name)
}

// Info logs through the global logger
func Info(message string) {
	GetGlobalLogger().log(LevelInfo, message)
}

// Infof logs through the global logger
func Infof(format string, args ...interface{}) {
	GetGlobalLogger().log(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs through the global logger
func Warn(message string) {
	GetGlobalLogger().log(LevelWarn, message)
}

// Error logs through the global logger
func Error(message string) {
	GetGlobalLogger().log(LevelError, message)
}
