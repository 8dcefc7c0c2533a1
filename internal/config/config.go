// Package config loads caster and receiver options from a TOML file,
// SCREENCAST_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/junsooki/screencast/internal/logging"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "SCREENCAST_"

var durationType = reflect.TypeOf(time.Duration(0))

// Load fills opts, a pointer to a struct, with precedence CLI flag > env
// var > config file > the value already in opts. A string field named
// Config holds the file path; a missing file is not an error. Flags the
// user set on cmd are never overwritten.
func Load(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}

	var path string
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		path = f.String()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var file map[string]any
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("config: parse %s: %w", path, err)
			}
			for i := 0; i < v.NumField(); i++ {
				field := t.Field(i)
				if changed[FlagName(field.Name)] {
					continue
				}
				key := field.Tag.Get("toml")
				if key == "" {
					continue
				}
				if value := nestedValue(file, key); value != nil {
					if err := setValue(v.Field(i), value); err != nil {
						return fmt.Errorf("config: %s: %w", key, err)
					}
				}
			}
		case !os.IsNotExist(err):
			return fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if changed[FlagName(field.Name)] {
			continue
		}
		key := field.Tag.Get("env")
		if key == "" {
			continue
		}
		if raw, ok := os.LookupEnv(EnvPrefix + key); ok && raw != "" {
			if err := setString(v.Field(i), raw); err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
		}
	}
	return nil
}

// FlagName converts a field name to its CLI flag, e.g. ControlListen to
// control-listen and FFmpeg to ffmpeg.
func FlagName(fieldName string) string {
	var out []rune
	prevLower := false
	for _, r := range fieldName {
		if unicode.IsUpper(r) && prevLower {
			out = append(out, '-')
		}
		prevLower = unicode.IsLower(r)
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

func nestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

func setValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}
	if s, ok := value.(string); ok {
		return setString(field, s)
	}
	switch field.Kind() {
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("want bool, got %T", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		default:
			return fmt.Errorf("want integer, got %T", value)
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		default:
			return fmt.Errorf("want number, got %T", value)
		}
	default:
		return fmt.Errorf("unsupported value %T", value)
	}
	return nil
}

func setString(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// LoadLoggingConfig reads the [logging] table of path. Keys other than
// level and format, and the keys of a nested [logging.modules] table, are
// per-module levels. A missing or unparsable file
// yields the defaults.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{Level: "info", Format: "text", Modules: make(map[string]string)}
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}
	for key, value := range raw.Logging {
		if modules, ok := value.(map[string]any); ok && key == "modules" {
			for module, level := range modules {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = s
		case "format":
			cfg.Format = s
		default:
			cfg.Modules[key] = s
		}
	}
	return cfg
}
