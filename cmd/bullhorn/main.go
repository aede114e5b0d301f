// Command bullhorn checks a Sakai portal's notification bell once and
// forwards new announcements to a Telegram chat.
//
// Usage:
//
//	bullhorn -config bullhorn.yaml
//	bullhorn -dry-run                # detect and report, send nothing
//	bullhorn -history 10             # print recent runs and exit
//
// Scheduling is external: point cron or a systemd timer at the binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/bullhorn"
)

type options struct {
	configPath  string
	statePath   string
	headless    bool
	headlessSet bool
	dryRun      bool
	history     int
}

func main() {
	configPath := flag.String("config", "", "path to bullhorn.yaml (optional, environment variables suffice)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	headless := flag.Bool("headless", true, "run Chrome headless")
	statePath := flag.String("state", "", "override the seen-state file path")
	dryRun := flag.Bool("dry-run", false, "detect and extract but send nothing, keep state untouched")
	history := flag.Int("history", 0, "print the N most recent journalled runs and exit")
	flag.Parse()

	opt := options{
		configPath: *configPath,
		statePath:  *statePath,
		headless:   *headless,
		dryRun:     *dryRun,
		history:    *history,
	}
	// Only an explicit -headless overrides config and environment.
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			opt.headlessSet = true
		}
	})

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opt); err != nil {
		logger.Error("bullhorn: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opt options) error {
	cfg, err := bullhorn.LoadConfig(opt.configPath)
	if err != nil {
		return err
	}
	if opt.statePath != "" {
		cfg.State.Path = opt.statePath
	}
	if opt.headlessSet {
		if opt.headless {
			cfg.Browser.Mode = bullhorn.ModeHeadless
		} else {
			cfg.Browser.Mode = bullhorn.ModeHeadful
		}
	}

	if opt.history > 0 {
		return printHistory(ctx, cfg, logger, opt.history)
	}

	if err := cfg.Validate(opt.dryRun); err != nil {
		return err
	}

	svc := bullhorn.New(cfg, logger, bullhorn.WithDryRun(opt.dryRun))
	defer svc.Close()

	_, err = svc.Run(ctx)
	return err
}

func printHistory(ctx context.Context, cfg *bullhorn.Config, logger *slog.Logger, limit int) error {
	svc := bullhorn.New(cfg, logger)
	defer svc.Close()

	runs, err := svc.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("journal is empty")
		return nil
	}

	for _, r := range runs {
		status := "ok"
		if r.Error != "" {
			status = "error: " + r.Error
		} else if r.DryRun {
			status = "dry-run"
		}
		fmt.Printf("#%d  %s  badge=%d detected=%d fresh=%d delivered=%d failed=%d  %s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.BadgeCount, r.Discovered, r.Fresh, r.Delivered, r.Failed, status)

		if r.Failed == 0 {
			continue
		}
		deliveries, err := svc.RunDeliveries(ctx, r.ID)
		if err != nil {
			logger.Warn("bullhorn: deliveries unavailable", "run", r.ID, "error", err)
			continue
		}
		for _, d := range deliveries {
			if !d.Delivered {
				fmt.Printf("    failed: %s (%s)\n", d.Title, d.Error)
			}
		}
	}
	return nil
}
