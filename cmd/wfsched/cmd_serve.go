package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/abdatta/wappflow/internal/clock"
	"github.com/abdatta/wappflow/internal/config"
	"github.com/abdatta/wappflow/internal/gateway"
	"github.com/abdatta/wappflow/internal/notify"
	"github.com/abdatta/wappflow/internal/pkg/logs"
	"github.com/abdatta/wappflow/internal/pkg/metrics"
	"github.com/abdatta/wappflow/internal/scheduler"
	"github.com/abdatta/wappflow/internal/sender"
	"github.com/abdatta/wappflow/internal/store"
)

var serveHwd = &ServeRunner{}

type ServeRunner struct{}

func (r *ServeRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the scheduler, sender session, and HTTP gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the runtime config file",
				Value:   "config.yaml",
			},
		},
		Action: r.run,
	}
}

func (r *ServeRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := getConfigPath(cmd.String("config"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := r.initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logs.CtxInfo(ctx, "booting scheduler, using config file: %s...", cfgPath)

	if cfg.Scheduler.Enabled != nil && !*cfg.Scheduler.Enabled {
		logs.CtxInfo(ctx, "scheduler disabled in config, nothing to run")
		return nil
	}

	db, err := store.Open(cfg.Scheduler.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	sendTimeout := time.Duration(cfg.Scheduler.SendTimeoutSec) * time.Second
	sndr, err := sender.New(sender.Config{
		UserDataDir: cfg.Scheduler.SenderUserDataDir,
		Headless:    cfg.Scheduler.SenderHeadless,
		SendTimeout: sendTimeout,
		TargetURL:   cfg.Scheduler.SenderTargetURL,
	})
	if err != nil {
		return fmt.Errorf("start sender: %w", err)
	}
	defer func() { _ = sndr.Close() }()

	fanout, err := buildNotifier(ctx, cfg.Notify)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	sch := scheduler.New(db, sndr, fanout, clock.System{}, m, scheduler.Options{
		TickInterval: time.Duration(cfg.Scheduler.TickIntervalSec) * time.Second,
	})

	gw := gateway.New(gateway.Options{
		Bind:           cfg.Gateway.Bind,
		RequestTimeout: time.Duration(cfg.Gateway.RequestTimeout) * time.Second,
		Registry:       registry,
	}, db, sndr, fanout, sch)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gw.Start(ctx)
	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "received shutdown signal (%s), stopping...", sig.String())
	case <-ctx.Done():
		logs.CtxInfo(ctx, "context canceled, stopping...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := gw.Stop(stopCtx); err != nil {
		logs.CtxError(ctx, "stop gateway: %v", err)
	}

	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}

func buildNotifier(ctx context.Context, cfg config.NotifyConfig) (*notify.Fanout, error) {
	var targets []notify.Target

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(ctx, cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, fmt.Errorf("init telegram notifier: %w", err)
		}
		targets = append(targets, tg)
	}

	if cfg.LarkAppID != "" && cfg.LarkAppSecret != "" && cfg.LarkChatID != "" {
		targets = append(targets, notify.NewLark(cfg.LarkAppID, cfg.LarkAppSecret, cfg.LarkChatID))
	}

	return notify.NewFanout(targets...), nil
}

func (r *ServeRunner) initLogger(cfg config.LoggingConfig) error {
	if err := logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	}); err != nil {
		return err
	}
	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))
	return nil
}

func getConfigPath(customPath string) string {
	if customPath != "" {
		return customPath
	}

	defaultPaths := []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".wfsched", "config.yaml"),
	}

	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultPaths[0]
}
