package log

import (
	"io"
	"os"
	"time"

	"github.com/cuemby/colony/pkg/types"
	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Components derive children from it.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Level is a log level name as written in configuration
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// ParseLevel converts a level name, falling back to info
func ParseLevel(name string) Level {
	if _, ok := zerologLevels[Level(name)]; ok {
		return Level(name)
	}
	return InfoLevel
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // Defaults to stderr so stdout stays free for command output
}

// Init replaces the global logger and sets the global level
func Init(cfg Config) {
	level, ok := zerologLevels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent tags entries with the emitting component
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithSlot tags entries with the slot index and its instance name
func WithSlot(index int) zerolog.Logger {
	return Logger.With().Int("slot", index).Str("slot_name", types.SlotName(index)).Logger()
}

// WithInstanceID tags entries with an EC2 instance id
func WithInstanceID(instanceID string) zerolog.Logger {
	return Logger.With().Str("instance_id", instanceID).Logger()
}

// WithQueue tags entries with a relay direction and its queue name
func WithQueue(direction types.Direction, queueName string) zerolog.Logger {
	return Logger.With().Str("direction", string(direction)).Str("queue", queueName).Logger()
}

func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}
