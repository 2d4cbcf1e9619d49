// Package main provides the devserver application entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/euforicio/devserver/internal/accesslog"
	"github.com/euforicio/devserver/internal/autorefresh"
	"github.com/euforicio/devserver/internal/buildinfo"
	"github.com/euforicio/devserver/internal/config"
	"github.com/euforicio/devserver/internal/fsys"
	"github.com/euforicio/devserver/internal/handler"
	"github.com/euforicio/devserver/internal/mimetype"
	"github.com/euforicio/devserver/internal/renderer"
	"github.com/euforicio/devserver/internal/server"
	"github.com/euforicio/devserver/internal/watch"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("devserver", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.Summary())
		os.Exit(0)
	}
	if cfg.ConfigFile != "" {
		fileCfg, err := config.WithFile(cfg.ConfigFile, flags)
		if err != nil {
			slog.Error("load configuration file", slog.String("path", cfg.ConfigFile), slog.Any("err", err))
			os.Exit(1)
		}
		cfg = fileCfg
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "devserver")
	slog.SetDefault(logger)
	logger.Info("starting devserver", slog.String("version", buildinfo.Summary()), slog.String("root", cfg.RootDir))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown complete")
			return
		}
		cancel()
		logger.Error("server error", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}
}

// run wires the components described by cfg and serves until ctx is canceled.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	mimes, err := mimetype.NewResolver(cfg.MimeTypes)
	if err != nil {
		return fmt.Errorf("mime types: %w", err)
	}

	var markdown *renderer.Service
	if cfg.Markdown {
		markdown, err = renderer.NewService(logger)
		if err != nil {
			return fmt.Errorf("init markdown renderer: %w", err)
		}
	}

	h, err := handler.New(cfg.RootDir, fsys.OS(), handler.Options{
		Mimes:    mimes,
		Markdown: markdown,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("init request handler: %w", err)
	}

	var opts server.Options
	if cfg.AutoRefresh {
		opts.Notifier = autorefresh.New(autorefresh.Options{
			Logger:            logger,
			KeepAliveInterval: cfg.KeepAliveInterval,
		})
	}

	if cfg.Watch {
		var excludeFiles []string
		if cfg.AccessLog != "" {
			excludeFiles = append(excludeFiles, cfg.AccessLog)
		}
		watcher, err := watch.New(cfg.RootDir, logger, watch.Options{
			ExcludeDirs:  cfg.WatchExclude,
			ExcludeFiles: excludeFiles,
			Debounce:     cfg.WatchDebounce,
			OnChange:     server.RefreshOnChange(h.Root(), opts.Notifier, markdown, logger),
		})
		if err != nil {
			return fmt.Errorf("init watcher: %w", err)
		}
		opts.Watcher = watcher
	}

	var jsonLog io.Writer
	if cfg.AccessLog != "" {
		f, err := accesslog.OpenFile(cfg.AccessLog)
		if err != nil {
			return err
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.Warn("close access log", slog.Any("err", err))
			}
		}()
		jsonLog = f
	}
	opts.Access = accesslog.New(accesslog.Options{
		Console: os.Stdout,
		JSON:    jsonLog,
		NoColor: cfg.NoColor,
	})

	srv, err := server.New(cfg, logger, h, opts)
	if err != nil {
		return fmt.Errorf("server init failed: %w", err)
	}
	return srv.Start(ctx)
}
