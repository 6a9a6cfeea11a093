package observability

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents log severity
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a LOG_LEVEL value to a LogLevel, defaulting to info
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a leveled key=value logger that can carry trace context.
// Derived loggers share the parent's output.
type Logger struct {
	out         *output
	minLevel    LogLevel
	fields      map[string]interface{}
	serviceName string
}

type output struct {
	mu        sync.Mutex
	stdLogger *log.Logger
}

var defaultLogger *Logger
var loggerOnce sync.Once

// NewLogger creates a logger writing to stdout
func NewLogger(serviceName string, minLevel LogLevel) *Logger {
	return &Logger{
		out:         &output{stdLogger: log.New(os.Stdout, "", 0)},
		minLevel:    minLevel,
		fields:      make(map[string]interface{}),
		serviceName: serviceName,
	}
}

// GetLogger returns the process-wide logger configured from SERVICE_NAME and LOG_LEVEL
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		serviceName := os.Getenv("SERVICE_NAME")
		if serviceName == "" {
			serviceName = "pocketledger-sync"
		}
		defaultLogger = NewLogger(serviceName, ParseLevel(os.Getenv("LOG_LEVEL")))
		if path := os.Getenv("LOG_FILE"); path != "" {
			defaultLogger.SetOutput(io.MultiWriter(os.Stdout, RotatingFile(path)))
		}
	})
	return defaultLogger
}

// RotatingFile returns a log file writer that rotates at 10 MB
func RotatingFile(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// SetOutput redirects the logger and every logger derived from it
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.stdLogger = log.New(w, "", 0)
}

// WithField returns a new logger with the field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with the fields added
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &Logger{
		out:         l.out,
		minLevel:    l.minLevel,
		fields:      merged,
		serviceName: l.serviceName,
	}
}

// WithContext returns a new logger with trace context
func (l *Logger) WithContext(ctx context.Context) *Logger {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return l.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}
	return l
}

func (l *Logger) Debug(msg string) { l.log(LevelDebug, msg) }
func (l *Logger) Info(msg string)  { l.log(LevelInfo, msg) }
func (l *Logger) Warn(msg string)  { l.log(LevelWarn, msg) }
func (l *Logger) Error(msg string) { l.log(LevelError, msg) }

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

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.minLevel {
		return
	}
	l.write(level, msg, 3)
}

func (l *Logger) write(level LogLevel, msg string, skip int) {
	_, file, line, _ := runtime.Caller(skip)
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s %s:%d %s",
		time.Now().Format("2006/01/02 15:04:05"),
		level.String(),
		l.serviceName,
		file,
		line,
		msg,
	)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}

	l.out.mu.Lock()
	l.out.stdLogger.Println(b.String())
	l.out.mu.Unlock()
}

// Package-level helpers log through the default logger

func Debug(msg string) { GetLogger().log(LevelDebug, msg) }
func Info(msg string)  { GetLogger().log(LevelInfo, msg) }
func Warn(msg string)  { GetLogger().log(LevelWarn, msg) }
func Error(msg string) { GetLogger().log(LevelError, msg) }

func Debugf(format string, args ...interface{}) {
	GetLogger().log(LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	GetLogger().log(LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	GetLogger().log(LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	GetLogger().log(LevelError, fmt.Sprintf(format, args...))
}

// WithField returns a logger with the field
func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

// WithFields returns a logger with the fields
func WithFields(fields map[string]interface{}) *Logger {
	return GetLogger().WithFields(fields)
}

// WithContext returns a logger with trace context
func WithContext(ctx context.Context) *Logger {
	return GetLogger().WithContext(ctx)
}

// Attribute helpers for span and metric fields

func DeviceID(id string) attribute.KeyValue {
	return attribute.String("sync.device_id", id)
}

func Table(name string) attribute.KeyValue {
	return attribute.String("sync.table", name)
}

func Phase(phase string) attribute.KeyValue {
	return attribute.String("sync.phase", phase)
}

func RecordCount(n int) attribute.KeyValue {
	return attribute.Int("sync.record_count", n)
}

func Duration(d time.Duration) attribute.KeyValue {
	return attribute.Int64("duration_ms", d.Milliseconds())
}
