// Package logger wraps zerolog behind a small structured API. Call sites
// build records from typed Field constructors and never import zerolog;
// warn and error records can additionally fan into an optional
// LogCollector for aggregated shipping.
package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls level, encoding and destination.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or a file path
	TimeFormat string // defaults to RFC3339Nano
}

// Logger emits structured records and mirrors warn/error levels into the
// attached collector, when one is attached.
type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

// New builds a logger for the given config.
func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var out io.Writer
	switch cfg.Output {
	case "stdout", "":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	// Skip count assumes one wrapper frame between the caller and Msg.
	zl := zerolog.New(out).Level(level).With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
	return &Logger{zl: zl}, nil
}

func (l *Logger) Debug(msg string, fields ...Field) {
	apply(l.zl.Debug(), fields).Msg(msg)
}

func (l *Logger) Info(msg string, fields ...Field) {
	apply(l.zl.Info(), fields).Msg(msg)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	apply(l.zl.Warn(), fields).Msg(msg)
	l.collect("warn", msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	apply(l.zl.Error(), fields).Msg(msg)
	l.collect("error", msg, fields)
}

// AddCollector starts shipping aggregated warn/error records through the
// given publisher. A previous collector is flushed and replaced.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(config)
}

// RemoveCollector flushes and detaches the collector. Call it before the
// publisher it writes through is closed.
func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

// collect mirrors one record into the collector. Caller(2) lands on the
// code that invoked Warn or Error.
func (l *Logger) collect(level, msg string, fields []Field) {
	if l.collector == nil {
		return
	}

	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		if i := strings.LastIndex(file, "FinTrade"); i >= 0 {
			file = file[i+len("FinTrade"):]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok && err != nil {
			m[f.Key] = err.Error()
			continue
		}
		m[f.Key] = f.Value
	}
	l.collector.AddLog(level, msg, m, caller)
}

// Field is one structured key/value attached to a record. The zerolog
// encoder is chosen by the value's dynamic type.
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) addTo(e *zerolog.Event) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return e.Str(f.Key, v)
	case int:
		return e.Int(f.Key, v)
	case int64:
		return e.Int64(f.Key, v)
	case bool:
		return e.Bool(f.Key, v)
	case time.Duration:
		return e.Dur(f.Key, v)
	case error:
		return e.AnErr(f.Key, v)
	default:
		return e.Interface(f.Key, v)
	}
}

func apply(e *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		e = f.addTo(e)
	}
	return e
}

func String(key, value string) Field { return Field{key, value} }

func Int(key string, value int) Field { return Field{key, value} }

func Int64(key string, value int64) Field { return Field{key, value} }

func Bool(key string, value bool) Field { return Field{key, value} }

func Duration(key string, value time.Duration) Field { return Field{key, value} }

func Any(key string, value interface{}) Field { return Field{key, value} }

// Error attaches err under the conventional "error" key.
func Error(err error) Field { return Field{"error", err} }
