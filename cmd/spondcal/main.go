package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "time/tzdata"

	"spondcal/internal/agenda"
	"spondcal/internal/capture"
	"spondcal/internal/config"
	appLog "spondcal/internal/log"
	"spondcal/internal/model"
	"spondcal/internal/render"
	"spondcal/internal/scheduler"
	"spondcal/internal/settings"
	"spondcal/internal/spond"
	"spondcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	format     string

	group     string
	sorting   string
	maxEvents int

	email    string
	password string
	logout   bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("spondcal starting", "version", version)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"api_url", conf.APIURL,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"settings_db", conf.SettingsDB,
		"default_sorting", conf.DefaultSorting,
		"default_max_events", conf.DefaultMaxEvents,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	store, err := settings.Open(conf.SettingsDB)
	if err != nil {
		appLog.Error("failed to open settings database", err, "path", conf.SettingsDB)
		os.Exit(1)
	}
	defer store.Close()

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

	if err := applyAccountFlags(ctx, store, flags); err != nil {
		appLog.Error("failed to update account", err)
		os.Exit(1)
	}

	loc := spond.LoadDisplayLocation(conf.Timezone)
	svc := agenda.NewService(store, agenda.Options{
		APIURL:    conf.APIURL,
		Location:  loc,
		Defaults:  conf.DisplayDefaults(),
		Transport: spond.NewHTTPTransport(conf.HTTPTimeout()),
	})

	if flags.once {
		req := agenda.Request{
			GroupID:   flags.group,
			SortOrder: flags.sorting,
			MaxEvents: flags.maxEvents,
		}
		if err := runOnce(ctx, os.Stdout, svc, req, flags.format); err != nil {
			appLog.Error("agenda failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf, svc, store, loc); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}

	// Give in-flight work a moment to finish logging.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("spondcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/spondcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print the agenda once and exit")
	flag.StringVar(&cfg.format, "format", "text", "Output format for -once: text, html, ics or json")

	flag.StringVar(&cfg.group, "group", "", "Group id for -once (defaults to the saved selection)")
	flag.StringVar(&cfg.sorting, "sorting", "", "Sort order for -once: asc or desc")
	flag.IntVar(&cfg.maxEvents, "max-events", 0, "Maximum number of events for -once")

	flag.StringVar(&cfg.email, "email", "", "Save this Spond account email (requires -password)")
	flag.StringVar(&cfg.password, "password", "", "Save this Spond account password (requires -email)")
	flag.BoolVar(&cfg.logout, "logout", false, "Remove the saved Spond account")

	flag.Parse()

	return cfg
}

// applyAccountFlags stores or clears the account before anything logs in.
func applyAccountFlags(ctx context.Context, store settings.Store, flags flagConfig) error {
	if flags.logout {
		appLog.Info("removing saved account")
		return settings.Logout(ctx, store)
	}
	if flags.email == "" && flags.password == "" {
		return nil
	}
	if flags.email == "" || flags.password == "" {
		return errors.New("-email and -password must be given together")
	}
	appLog.Info("saving account", "email", flags.email)
	return settings.SaveCredentials(ctx, store, model.Credentials{Email: flags.email, Password: flags.password})
}

// runOnce writes a single agenda to w.
func runOnce(ctx context.Context, w io.Writer, svc *agenda.Service, req agenda.Request, format string) error {
	views, err := svc.Events(ctx, req)
	if errors.Is(err, agenda.ErrNoCredentials) {
		_, werr := fmt.Fprintln(w, render.MissingCredentialsMessage)
		return werr
	}
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "", "text":
		return render.Text(w, views)
	case "html":
		return render.Page(w, render.PageData{Zone: svc.Location().String(), Views: views})
	case "ics":
		return render.ICS(w, views, "Spond agenda", time.Now())
	case "json":
		return render.JSON(w, views, svc.Location().String())
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// serve runs the web server and, when configured, the refresh scheduler
// until ctx is canceled.
func serve(ctx context.Context, conf *config.Config, svc *agenda.Service, store settings.Store, loc *time.Location) error {
	if conf.RefreshCron != "" {
		sched, err := scheduler.New(conf.RefreshCron, loc, refreshTasks(conf, svc)...)
		if err != nil {
			return err
		}
		go func() {
			if err := sched.Run(ctx); err != nil {
				appLog.Error("scheduler failed", err)
			}
		}()
	} else {
		appLog.Info("refresh schedule empty, scheduler disabled")
	}

	err := web.StartServer(ctx, conf, svc, store)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// refreshTasks builds the scheduled refresh: fetch the agenda so upstream
// problems show up in the log, then re-capture the preview if enabled.
func refreshTasks(conf *config.Config, svc *agenda.Service) []scheduler.Task {
	tasks := []scheduler.Task{{
		Name: "fetch",
		Run: func(ctx context.Context) error {
			views, err := svc.Events(ctx, agenda.Request{})
			if errors.Is(err, agenda.ErrNoCredentials) || errors.Is(err, agenda.ErrNoGroup) {
				appLog.Warn("agenda refresh skipped", "reason", err.Error())
				return nil
			}
			if err != nil {
				return err
			}
			appLog.Info("agenda refreshed", "events", len(views))
			return nil
		},
	}}

	if conf.Capture.Enabled {
		tasks = append(tasks, scheduler.Task{
			Name: "capture",
			Run: func(ctx context.Context) error {
				return capture.CaptureAgendaPNG(ctx, capture.CaptureOptions{
					URL:        agendaURL(conf),
					OutputPath: conf.Capture.OutputPath,
					Width:      conf.Capture.Width,
					Height:     conf.Capture.Height,
				})
			},
		})
	}
	return tasks
}

// agendaURL is the local /agenda address the capture loads, carrying the
// basic auth credentials when they are configured.
func agendaURL(conf *config.Config) string {
	u := url.URL{Scheme: "http", Host: conf.Listen, Path: "/agenda"}
	if ba := conf.BasicAuth; ba != nil && ba.Username != "" && ba.Password != "" {
		u.User = url.UserPassword(ba.Username, ba.Password)
	}
	return u.String()
}
