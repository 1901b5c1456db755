package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	zl   zerolog.Logger
	base []Field
	slot *collectorSlot
}

// collectorSlot is shared by a logger and every child made with With, so a
// collector attached after the children were handed out still sees them.
type collectorSlot struct {
	mu sync.RWMutex
	c  *LogCollector
}

func (s *collectorSlot) get() *LogCollector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

func (s *collectorSlot) swap(c *LogCollector) *LogCollector {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.c
	s.c = c
	return old
}

type Config struct {
	Level      string // debug, info, warn, error, fatal, panic
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string // time format for log messages

	// Rotation settings, only used when Output is a file path.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
			NoColor:    cfg.Output != "" && cfg.Output != "stdout" && cfg.Output != "stderr",
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &Logger{zl: logger, slot: &collectorSlot{}}, nil
}

// NewWriter builds a logger writing JSON lines to w. Handy in tests.
func NewWriter(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).With().Timestamp().Logger(), slot: &collectorSlot{}}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), slot: &collectorSlot{}}
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		k, v := f.GetKeyValue()
		ctx = ctx.Interface(k, v)
	}
	base := make([]Field, 0, len(l.base)+len(fields))
	base = append(append(base, l.base...), fields...)
	return &Logger{zl: ctx.Logger(), base: base, slot: l.slot}
}

func (l *Logger) addToCollector(level, msg string, fields []Field) {
	c := l.slot.get()
	if c == nil || !c.Accepts(level) {
		return
	}

	// Get caller info (skip frames: this function -> Error/Warn -> user code)
	_, file, line, ok := runtime.Caller(2)
	var caller string
	if ok {
		parts := strings.Split(file, "telegram-automated-signal")
		filename := parts[len(parts)-1]
		caller = fmt.Sprintf("%s:%d", filename, line)
	} else {
		caller = "unknown"
	}

	fieldMap := make(map[string]interface{}, len(l.base)+len(fields))
	for _, field := range l.base {
		key, value := field.GetKeyValue()
		fieldMap[key] = value
	}
	for _, field := range fields {
		key, value := field.GetKeyValue()
		fieldMap[key] = value
	}

	c.AddLog(level, msg, fieldMap, caller)
}

// --- Logger methods ---

func (l *Logger) Info(msg string, fields ...Field) {
	event := l.zl.Info()
	for _, field := range fields {
		field.AddTo(event)
	}
	event.Msg(msg)
}

func (l *Logger) Error(msg string, fields ...Field) {
	event := l.zl.Error()
	for _, field := range fields {
		field.AddTo(event)
	}
	event.Msg(msg)

	l.addToCollector("error", msg, fields)
}

func (l *Logger) Debug(msg string, fields ...Field) {
	event := l.zl.Debug()
	for _, field := range fields {
		field.AddTo(event)
	}
	event.Msg(msg)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	event := l.zl.Warn()
	for _, field := range fields {
		field.AddTo(event)
	}
	event.Msg(msg)

	l.addToCollector("warn", msg, fields)
}

// AddCollector attaches a collector to this logger and all loggers derived
// from the same root. A previous collector is flushed and closed.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if old := l.slot.swap(NewLogCollector(config)); old != nil {
		old.Close()
	}
}

// RemoveCollector detaches and closes the collector, publishing what it held.
func (l *Logger) RemoveCollector() {
	if old := l.slot.swap(nil); old != nil {
		old.Close()
	}
}

// Field types for structured logging.
type Field interface {
	AddTo(event *zerolog.Event)
	GetKeyValue() (string, interface{})
}

type StringField struct {
	Key   string
	Value string
}

func (f StringField) AddTo(event *zerolog.Event) {
	event.Str(f.Key, f.Value)
}

func (f StringField) GetKeyValue() (string, interface{}) {
	return f.Key, f.Value
}

type IntField struct {
	Key   string
	Value int
}

func (f IntField) AddTo(event *zerolog.Event) {
	event.Int(f.Key, f.Value)
}

func (f IntField) GetKeyValue() (string, interface{}) {
	return f.Key, f.Value
}

type Int64Field struct {
	Key   string
	Value int64
}

func (f Int64Field) AddTo(event *zerolog.Event) {
	event.Int64(f.Key, f.Value)
}

func (f Int64Field) GetKeyValue() (string, interface{}) {
	return f.Key, f.Value
}

type ErrorField struct {
	Key   string
	Value error
}

func (f ErrorField) AddTo(event *zerolog.Event) {
	event.Err(f.Value)
}

func (f ErrorField) GetKeyValue() (string, interface{}) {
	if f.Value == nil {
		return f.Key, nil
	}
	return f.Key, f.Value.Error()
}

type AnyField struct {
	Key   string
	Value interface{}
}

func (f AnyField) AddTo(event *zerolog.Event) {
	event.Interface(f.Key, f.Value)
}

func (f AnyField) GetKeyValue() (string, interface{}) {
	return f.Key, f.Value
}

type BoolField struct {
	Key   string
	Value bool
}

func (f BoolField) AddTo(event *zerolog.Event) {
	event.Bool(f.Key, f.Value)
}

func (f BoolField) GetKeyValue() (string, interface{}) {
	return f.Key, f.Value
}

// --- Field constructors ---

func String(key, value string) Field {
	return StringField{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return IntField{Key: key, Value: value}
}

func Error(err error) Field {
	return ErrorField{Key: "error", Value: err}
}

func Any(key string, value interface{}) Field {
	return AnyField{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return IntField{Key: key, Value: int(value / time.Millisecond)}
}

func Int64(key string, value int64) Field {
	return Int64Field{Key: key, Value: value}
}

func Bool(s string, v bool) Field {
	return BoolField{Key: s, Value: v}
}
