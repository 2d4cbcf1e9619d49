// Package config manages application configuration from files, environment variables and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const envPrefix = "DEVSERVER_"

// Config holds runtime configuration for the development server.
type Config struct { //nolint:govet // fields grouped by concern
	RootDir    string
	Host       string
	ConfigFile string
	AccessLog  string
	Port       int

	AutoRefresh       bool
	KeepAliveInterval time.Duration

	Watch         bool
	WatchDebounce time.Duration
	WatchExclude  []string

	Markdown  bool
	AutoOpen  bool
	Verbose   bool
	NoColor   bool
	MimeTypes map[string]string
}

// Default returns ready-to-use defaults prior to file, env and flag overrides.
func Default() Config {
	return Config{
		RootDir:           ".",
		Host:              "localhost",
		Port:              8080,
		KeepAliveInterval: time.Minute,
		WatchDebounce:     100 * time.Millisecond,
	}
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.RootDir, "root", "r", cfg.RootDir, "directory to serve")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "host name or address to bind")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to bind (0 = pick a free port)")
	fs.StringVarP(&cfg.ConfigFile, "config", "c", cfg.ConfigFile, "optional TOML or YAML configuration file")
	fs.BoolVarP(&cfg.AutoRefresh, "auto-refresh", "a", cfg.AutoRefresh, "inject a reload script into HTML pages; POST /dev-server-auto-refresh from localhost forces a reload")
	fs.DurationVar(&cfg.KeepAliveInterval, "keep-alive", cfg.KeepAliveInterval, "interval between auto-refresh keep-alive comments")
	fs.BoolVarP(&cfg.Watch, "watch", "w", cfg.Watch, "refresh browsers when files under the root change (implies --auto-refresh)")
	fs.DurationVar(&cfg.WatchDebounce, "watch-debounce", cfg.WatchDebounce, "quiet period before a batch of file changes triggers a refresh")
	fs.StringSliceVar(&cfg.WatchExclude, "watch-exclude", cfg.WatchExclude, "additional directory names the watcher ignores")
	fs.BoolVarP(&cfg.Markdown, "markdown", "m", cfg.Markdown, "render markdown files as HTML previews")
	fs.BoolVar(&cfg.AutoOpen, "open", cfg.AutoOpen, "open the browser automatically after start")
	fs.StringVar(&cfg.AccessLog, "access-log", cfg.AccessLog, "append JSON access records to this file")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "disable colored request log output")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging")
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("ROOT", func(v string) { cfg.RootDir = v })
	applyStringEnv("HOST", func(v string) { cfg.Host = v })
	applyIntEnv("PORT", func(v int) { cfg.Port = v })
	applyStringEnv("CONFIG", func(v string) { cfg.ConfigFile = v })
	applyBoolEnv("AUTO_REFRESH", func(v bool) { cfg.AutoRefresh = v })
	applyDurationEnv("KEEP_ALIVE", func(v time.Duration) { cfg.KeepAliveInterval = v })
	applyBoolEnv("WATCH", func(v bool) { cfg.Watch = v })
	applyDurationEnv("WATCH_DEBOUNCE", func(v time.Duration) { cfg.WatchDebounce = v })
	applyBoolEnv("MARKDOWN", func(v bool) { cfg.Markdown = v })
	applyBoolEnv("OPEN", func(v bool) { cfg.AutoOpen = v })
	applyStringEnv("ACCESS_LOG", func(v string) { cfg.AccessLog = v })
	applyBoolEnv("NO_COLOR", func(v bool) { cfg.NoColor = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func applyDurationEnv(key string, apply func(time.Duration)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := time.ParseDuration(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// WithFile rebuilds the configuration with path as the base layer: defaults, then the file,
// then the environment, then every flag explicitly set in flags.
func WithFile(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	if err := LoadFile(path, &cfg); err != nil {
		return Config{}, err
	}
	ApplyEnvOverrides(&cfg)
	cfg.ConfigFile = path

	replay := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	RegisterFlags(replay, &cfg)

	var replayErr error
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || replay.Lookup(f.Name) == nil || replayErr != nil {
			return
		}
		value := f.Value.String()
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			value = strings.Join(sv.GetSlice(), ",")
		}
		if err := replay.Set(f.Name, value); err != nil {
			replayErr = fmt.Errorf("apply flag --%s: %w", f.Name, err)
		}
	})
	if replayErr != nil {
		return Config{}, replayErr
	}
	return cfg, nil
}

// Finalize validates and normalizes the configuration.
func Finalize(cfg *Config) error {
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}
	cfg.RootDir = root

	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}

	// Allow port 0 for dynamic allocation, otherwise validate range
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}

	if cfg.KeepAliveInterval <= 0 {
		return fmt.Errorf("invalid keep-alive interval: %s", cfg.KeepAliveInterval)
	}
	if cfg.WatchDebounce <= 0 {
		return fmt.Errorf("invalid watch debounce: %s", cfg.WatchDebounce)
	}

	if cfg.Watch {
		cfg.AutoRefresh = true
	}

	if cfg.AccessLog != "" {
		accessLog, err := filepath.Abs(cfg.AccessLog)
		if err != nil {
			return fmt.Errorf("resolve access log path: %w", err)
		}
		cfg.AccessLog = accessLog
	}

	for ext := range cfg.MimeTypes {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("invalid mime type extension %q: must start with '.'", ext)
		}
	}
	return nil
}
