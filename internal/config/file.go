package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for TOML and YAML files. Pointer fields distinguish
// "unset" from zero values.
type fileConfig struct {
	Root          *string           `toml:"root" yaml:"root"`
	Host          *string           `toml:"host" yaml:"host"`
	Port          *int              `toml:"port" yaml:"port"`
	AutoRefresh   *bool             `toml:"auto_refresh" yaml:"auto_refresh"`
	KeepAlive     *string           `toml:"keep_alive_interval" yaml:"keep_alive_interval"`
	Watch         *bool             `toml:"watch" yaml:"watch"`
	WatchDebounce *string           `toml:"watch_debounce" yaml:"watch_debounce"`
	WatchExclude  []string          `toml:"watch_exclude" yaml:"watch_exclude"`
	Markdown      *bool             `toml:"markdown" yaml:"markdown"`
	AutoOpen      *bool             `toml:"open" yaml:"open"`
	AccessLog     *string           `toml:"access_log" yaml:"access_log"`
	NoColor       *bool             `toml:"no_color" yaml:"no_color"`
	Verbose       *bool             `toml:"verbose" yaml:"verbose"`
	MimeTypes     map[string]string `toml:"mime_types" yaml:"mime_types"`
}

// LoadFile decodes a TOML (.toml) or YAML (.yaml, .yml) file onto cfg.
// Relative paths inside the file are resolved against the file's directory.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&fc)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse %s: unknown key %q", path, undecoded[0].String())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q (use .toml, .yaml or .yml)", ext)
	}

	return fc.apply(cfg, filepath.Dir(path))
}

func (fc fileConfig) apply(cfg *Config, baseDir string) error {
	if fc.Root != nil {
		cfg.RootDir = resolveRelative(baseDir, *fc.Root)
	}
	if fc.Host != nil {
		cfg.Host = *fc.Host
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.AutoRefresh != nil {
		cfg.AutoRefresh = *fc.AutoRefresh
	}
	if fc.KeepAlive != nil {
		d, err := time.ParseDuration(*fc.KeepAlive)
		if err != nil {
			return fmt.Errorf("keep_alive_interval: %w", err)
		}
		cfg.KeepAliveInterval = d
	}
	if fc.Watch != nil {
		cfg.Watch = *fc.Watch
	}
	if fc.WatchDebounce != nil {
		d, err := time.ParseDuration(*fc.WatchDebounce)
		if err != nil {
			return fmt.Errorf("watch_debounce: %w", err)
		}
		cfg.WatchDebounce = d
	}
	if fc.WatchExclude != nil {
		cfg.WatchExclude = append([]string(nil), fc.WatchExclude...)
	}
	if fc.Markdown != nil {
		cfg.Markdown = *fc.Markdown
	}
	if fc.AutoOpen != nil {
		cfg.AutoOpen = *fc.AutoOpen
	}
	if fc.AccessLog != nil {
		cfg.AccessLog = resolveRelative(baseDir, *fc.AccessLog)
	}
	if fc.NoColor != nil {
		cfg.NoColor = *fc.NoColor
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if len(fc.MimeTypes) > 0 {
		cfg.MimeTypes = make(map[string]string, len(fc.MimeTypes))
		for ext, typ := range fc.MimeTypes {
			cfg.MimeTypes[ext] = typ
		}
	}
	return nil
}

func resolveRelative(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
