// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel accepts level names case-insensitively. Unknown names fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL", "CRITICAL":
		return FATAL
	default:
		return INFO
	}
}

var (
	mu       sync.RWMutex
	level    = INFO
	base     = newBase(os.Stderr)
	rotating *lumberjack.Logger
)

func newBase(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}
}

// Init configures the console writer and, when dir is set, a rotating log file inside it.
func Init(dir string, lvl LogLevel) error {
	mu.Lock()
	defer mu.Unlock()

	writers := []io.Writer{consoleWriter()}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		if rotating != nil {
			rotating.Close()
		}
		rotating = &lumberjack.Logger{
			Filename:   filepath.Join(dir, "dicerobot.log"),
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		writers = append(writers, rotating)
	}

	base = newBase(zerolog.MultiLevelWriter(writers...))
	level = lvl
	return nil
}

// SetOutput replaces all writers. Mostly useful in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newBase(w)
}

func SetLevel(lvl LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	level = lvl
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotating == nil {
		return nil
	}
	err := rotating.Close()
	rotating = nil
	return err
}

func logMessage(lvl LogLevel, component string, message string, fields map[string]interface{}) {
	mu.RLock()
	if lvl < level {
		mu.RUnlock()
		return
	}
	l := base
	mu.RUnlock()

	evt := l.WithLevel(lvl.zerolog())
	if component != "" {
		evt = evt.Str("component", component)
	}
	if len(fields) > 0 {
		evt = evt.Fields(fields)
	}
	evt.Msg(message)

	if lvl == FATAL {
		os.Exit(1)
	}
}

func Debug(message string) {
	logMessage(DEBUG, "", message, nil)
}

func DebugC(component string, message string) {
	logMessage(DEBUG, component, message, nil)
}

func DebugF(message string, fields map[string]interface{}) {
	logMessage(DEBUG, "", message, fields)
}

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func Info(message string) {
	logMessage(INFO, "", message, nil)
}

func InfoC(component string, message string) {
	logMessage(INFO, component, message, nil)
}

func InfoF(message string, fields map[string]interface{}) {
	logMessage(INFO, "", message, fields)
}

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func Warn(message string) {
	logMessage(WARN, "", message, nil)
}

func WarnC(component string, message string) {
	logMessage(WARN, component, message, nil)
}

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func Error(message string) {
	logMessage(ERROR, "", message, nil)
}

func ErrorC(component string, message string) {
	logMessage(ERROR, component, message, nil)
}

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}

func FatalCF(component string, message string, fields map[string]interface{}) {
	logMessage(FATAL, component, message, fields)
}
