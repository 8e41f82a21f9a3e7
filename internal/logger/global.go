package logger

import (
	"os"
	"sync/atomic"
)

var std atomic.Pointer[Logger]

func init() {
	std.Store(NewDefault())
	Configure(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Default returns the process-wide logger.
func Default() *Logger { return std.Load() }

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) { std.Store(l) }

// Configure applies textual level and format settings to the process-wide
// logger. Empty or unknown values leave the current setting untouched.
func Configure(level, format string) {
	l := Default()
	if lv, ok := ParseLevel(level); ok {
		l.SetLevel(lv)
	}
	if f, ok := ParseFormat(format); ok {
		l.SetFormat(f)
	}
}

// WithComponent derives a component logger from the process-wide logger.
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}

func Debug(message string, fields ...map[string]interface{}) { Default().Debug(message, fields...) }

func Info(message string, fields ...map[string]interface{}) { Default().Info(message, fields...) }

func Warn(message string, fields ...map[string]interface{}) { Default().Warn(message, fields...) }

func Error(message string, err error, fields ...map[string]interface{}) {
	Default().Error(message, err, fields...)
}
