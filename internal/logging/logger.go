package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func ParseLevel(levelStr string) Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

type Logger struct {
	level     Level
	component string
	mu        *sync.Mutex
	out       io.Writer
}

// NewLogger logs to stderr so subprocess output on stdout stays untouched.
func NewLogger(levelStr string) *Logger {
	return NewLoggerWithWriter(levelStr, os.Stderr)
}

func NewLoggerWithWriter(levelStr string, w io.Writer) *Logger {
	return &Logger{
		level: ParseLevel(levelStr),
		mu:    &sync.Mutex{},
		out:   w,
	}
}

func (l *Logger) WithComponent(component string) *Logger {
	c := *l
	c.component = component
	return &c
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.emit("fatal", fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

func (l *Logger) Debugw(msg string, fields map[string]any) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Infow(msg string, fields map[string]any)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warnw(msg string, fields map[string]any)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Errorw(msg string, fields map[string]any) { l.write(LevelError, msg, fields) }

func (l *Logger) write(level Level, msg string, fields map[string]any) {
	if level < l.level {
		return
	}
	l.emit(level.String(), msg, fields)
}

func (l *Logger) emit(level, msg string, fields map[string]any) {
	rec := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		rec[k] = v
	}
	rec["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	rec["level"] = level
	rec["msg"] = msg
	if l.component != "" {
		rec["component"] = l.component
	}

	line, err := json.Marshal(rec)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":%q,"msg":%q,"marshal_error":%q}`, level, msg, err.Error()))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(line, '\n'))
}
