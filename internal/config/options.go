package config

import (
	"time"

	"github.com/junsooki/screencast/internal/logging"
)

// CasterOptions configures cmd/caster.
type CasterOptions struct {
	Config string

	Listen   string        `toml:"caster.listen" env:"LISTEN"`
	Source   string        `toml:"caster.source" env:"SOURCE"`
	Display  int           `toml:"caster.display" env:"DISPLAY"`
	Region   string        `toml:"caster.region" env:"REGION"`
	Codec    string        `toml:"caster.codec" env:"CODEC"`
	Quality  int           `toml:"caster.quality" env:"QUALITY"`
	Interval time.Duration `toml:"caster.interval" env:"INTERVAL"`
	Buffer   int           `toml:"caster.buffer" env:"BUFFER"`

	ControlListen string `toml:"caster.control_listen" env:"CONTROL_LISTEN"`
	ControlFile   string `toml:"caster.control_file" env:"CONTROL_FILE"`
	MetricsListen string `toml:"caster.metrics_listen" env:"METRICS_LISTEN"`

	LoggingLevel  string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `toml:"logging.format" env:"LOGGING_FORMAT"`
}

// DefaultCasterOptions returns the built-in caster defaults.
func DefaultCasterOptions() CasterOptions {
	return CasterOptions{
		Config:        "screencast.toml",
		Listen:        "127.0.0.1:12345",
		Source:        "display",
		Codec:         "jpeg",
		Quality:       70,
		Interval:      40 * time.Millisecond,
		Buffer:        16,
		LoggingLevel:  "info",
		LoggingFormat: "text",
	}
}

// Logging merges the [logging] module levels of the config file with the
// resolved global level and format.
func (o *CasterOptions) Logging() logging.Config {
	return mergeLogging(o.Config, o.LoggingLevel, o.LoggingFormat)
}

// ReceiverOptions configures cmd/receiver.
type ReceiverOptions struct {
	Config string

	Connect   string `toml:"receiver.connect" env:"CONNECT"`
	Codec     string `toml:"receiver.codec" env:"CODEC"`
	RecordDir string `toml:"receiver.record_dir" env:"RECORD_DIR"`
	Record    bool   `toml:"receiver.record" env:"RECORD"`
	Window    bool   `toml:"receiver.window" env:"WINDOW"`
	FFmpeg    string `toml:"receiver.ffmpeg" env:"FFMPEG"`

	StallTimeout  time.Duration `toml:"receiver.stall_timeout" env:"STALL_TIMEOUT"`
	MetricsListen string        `toml:"receiver.metrics_listen" env:"METRICS_LISTEN"`

	LoggingLevel  string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `toml:"logging.format" env:"LOGGING_FORMAT"`
}

// DefaultReceiverOptions returns the built-in receiver defaults.
func DefaultReceiverOptions() ReceiverOptions {
	return ReceiverOptions{
		Config:        "screencast.toml",
		Connect:       "127.0.0.1:12345",
		Codec:         "jpeg",
		RecordDir:     "recordings",
		Window:        true,
		FFmpeg:        "ffmpeg",
		StallTimeout:  2 * time.Second,
		LoggingLevel:  "info",
		LoggingFormat: "text",
	}
}

func (o *ReceiverOptions) Logging() logging.Config {
	return mergeLogging(o.Config, o.LoggingLevel, o.LoggingFormat)
}

func mergeLogging(path, level, format string) logging.Config {
	cfg := LoadLoggingConfig(path)
	if level != "" {
		cfg.Level = level
	}
	if format != "" {
		cfg.Format = format
	}
	return cfg
}
