// Package logger is a thin category-aware facade over zerolog. Every
// subsystem logs under a short category string ("transport", "pipeline",
// "queue", ...) with optional structured fields.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var root = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.TimeOnly,
}).With().Timestamp().Logger()

// SetLevel sets the global log level. Unknown names fall back to info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func emit(e *zerolog.Event, category, msg string, fields map[string]interface{}) {
	e.Str("category", category)
	if len(fields) > 0 {
		e.Fields(fields)
	}
	e.Msg(msg)
}

func DebugC(category, msg string) { emit(root.Debug(), category, msg, nil) }

func DebugCF(category, msg string, fields map[string]interface{}) {
	emit(root.Debug(), category, msg, fields)
}

func InfoC(category, msg string) { emit(root.Info(), category, msg, nil) }

func InfoCF(category, msg string, fields map[string]interface{}) {
	emit(root.Info(), category, msg, fields)
}

func WarnC(category, msg string) { emit(root.Warn(), category, msg, nil) }

func WarnCF(category, msg string, fields map[string]interface{}) {
	emit(root.Warn(), category, msg, fields)
}

func ErrorC(category, msg string) { emit(root.Error(), category, msg, nil) }

func ErrorCF(category, msg string, fields map[string]interface{}) {
	emit(root.Error(), category, msg, fields)
}
