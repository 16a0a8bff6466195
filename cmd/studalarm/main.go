package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"studalarm/internal/alarm"
	"studalarm/internal/app"
	"studalarm/internal/config"
	appLog "studalarm/internal/log"
	"studalarm/internal/model"
	"studalarm/internal/notify"
	"studalarm/internal/schedule"
	"studalarm/internal/store"
	"studalarm/internal/travel"
	"studalarm/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

// notifier is an alarm backend that holds OS resources.
type notifier interface {
	alarm.Notifier
	io.Closer
}

func main() {
	appLog.Info("studalarm starting", "version", version)

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "DEBUG"
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	appLog.SetLevel(appLog.Level(strings.ToUpper(conf.LogLevel)))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"db_path", conf.DBPath,
		"notifier", conf.Notifier,
		"group", conf.GroupID,
		"horizon_weeks", conf.Alarm.HorizonWeeks,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("studalarm stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("studalarm exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	kv, err := store.OpenSQLite(conf.DBPath)
	if err != nil {
		return err
	}
	defer kv.Close()

	n := newNotifier(conf.Notifier)
	defer n.Close()

	scheduler := alarm.NewScheduler(n, kv)
	if err := scheduler.Init(ctx); err != nil {
		appLog.Warn("notifier init failed; alarms stay inactive", "err", err)
	}

	loc := conf.Location()
	slots := schedule.SlotTable(conf.Slots)
	settings := store.NewSettingsRepo(kv, model.Settings{
		GroupID:              conf.GroupID,
		RoutineMinutes:       conf.Alarm.RoutineMinutes,
		BufferMinutes:        conf.Alarm.BufferMinutes,
		DefaultTravelMinutes: conf.Alarm.DefaultTravelMinutes,
	})
	reminders := store.NewReminders(kv)
	lessons := store.NewCustomLessons(kv, slots)
	travelTimes := store.NewTravelTimes(kv)

	svc := app.NewService(app.Deps{
		Fetcher: schedule.NewFetcher(schedule.FetcherConfig{
			BaseURL:  conf.Source.BaseURL,
			Referer:  conf.Source.Referer,
			Attempts: conf.Source.Attempts,
			Timeout:  conf.SourceTimeout(),
		}),
		KV:           kv,
		Cache:        schedule.NewCache(kv, conf.CacheTTL()),
		Settings:     settings,
		Reminders:    reminders,
		Lessons:      lessons,
		TravelTimes:  travelTimes,
		Scheduler:    scheduler,
		Rules:        travel.RulesFromConfig(conf),
		Slots:        slots,
		Excluded:     conf.ExcludedSubjects,
		HorizonWeeks: conf.Alarm.HorizonWeeks,
		Location:     loc,
	})

	refresh := func() {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Minute)
		defer rcancel()
		res, err := svc.Refresh(rctx, false)
		if err != nil {
			return
		}
		fields := []any{"status", res.Status, "candidates", res.Candidates, "source", res.Source}
		if res.Candidate != nil {
			fields = append(fields, "alarm_at", res.Candidate.AlarmAt.Format(time.RFC3339), "event", res.Candidate.Title, "day", res.Day)
		}
		if res.Reason != "" {
			fields = append(fields, "reason", res.Reason)
		}
		appLog.Info("refresh done", fields...)
	}

	refresh()
	if flags.once {
		return nil
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(conf.RefreshCron, refresh); err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	errCh := make(chan error, 1)
	go func() {
		errCh <- web.StartServer(ctx, web.Deps{
			Config:      conf,
			Service:     svc,
			Reminders:   reminders,
			Lessons:     lessons,
			Addresses:   store.NewAddresses(kv),
			Settings:    settings,
			TravelTimes: travelTimes,
			Debug:       flags.debug,
		})
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func newNotifier(kind string) notifier {
	if kind == "memory" {
		appLog.Warn("memory notifier selected; alarms are tracked but never delivered")
		return notify.NewMemory(true)
	}
	return notify.NewDesktop("studalarm")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/studalarm/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle, log the computed alarm and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging and gin debug mode")

	flag.Parse()

	return cfg
}
