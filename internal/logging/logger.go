// Package logging provides zerolog loggers with per-module level overrides.
//
// Initialize once at startup, then ask for a module logger:
//
//	logging.Initialize(logging.Config{Level: "info", Format: "text"})
//	logger := logging.GetLogger("caster")
//	logger.Info().Str("addr", addr).Msg("Listening")
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu            sync.RWMutex
	globalConfig  = Config{Level: "info", Format: "text"}
	output        io.Writer = os.Stdout
	moduleLoggers           = make(map[string]zerolog.Logger)
)

// Initialize sets up the logging system and rebuilds any module loggers
// created before it was called.
func Initialize(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if cfg.Level == "" {
		cfg.Level = "info"
	}
	globalConfig = cfg
	for module := range moduleLoggers {
		moduleLoggers[module] = newLogger(module)
	}
}

// SetOutput redirects all loggers to w. Tests use it with io.Discard.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	for module := range moduleLoggers {
		moduleLoggers[module] = newLogger(module)
	}
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) zerolog.Logger {
	mu.RLock()
	if logger, ok := moduleLoggers[module]; ok {
		mu.RUnlock()
		return logger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}
	logger := newLogger(module)
	moduleLoggers[module] = logger
	return logger
}

// newLogger must be called with mu held.
func newLogger(module string) zerolog.Logger {
	level := ParseLevel(globalConfig.Level)
	if override, ok := globalConfig.Modules[module]; ok {
		level = ParseLevel(override)
	}

	w := output
	if globalConfig.Format != "json" {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly, NoColor: output != os.Stdout}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("module", module).Logger()
}

// ParseLevel converts a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
