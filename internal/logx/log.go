package logx

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the shared logger used throughout the gateway.
var Log = log.Logger

// Options controls where and how log lines are written.
type Options struct {
	Level  string
	Format string // console or json
	Dir    string // rotating file sink; disabled when empty
}

// LogFileName is the file written under Options.Dir.
const LogFileName = "llmgate.log"

// Configure sets the global log level and keeps console output.
// The level string is tolerant of case and common synonyms.
func Configure(level string) {
	Setup(Options{Level: level})
}

// Setup configures level, format and sinks for Log.
func Setup(opts Options) {
	zerolog.SetGlobalLevel(parseLevel(opts.Level))
	Log = zerolog.New(output(os.Stderr, opts)).With().Timestamp().Logger()
}

func output(stderr io.Writer, opts Options) io.Writer {
	var console io.Writer = stderr
	if !strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = zerolog.ConsoleWriter{Out: stderr}
	}
	if opts.Dir == "" {
		return console
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, LogFileName),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	// files always get JSON so they can be shipped as-is
	return zerolog.MultiLevelWriter(console, file)
}

// parseLevel converts a string to a zerolog level.
// Accepts: all, debug, info, warn, warning, error, fatal, none.
// Unknown values default to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	Configure(os.Getenv("LOG_LEVEL"))
}
