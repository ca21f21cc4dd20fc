package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/calendar-1m/project/internal/app/calendarapi"
	"github.com/calendar-1m/project/internal/app/calendarview"
	"github.com/calendar-1m/project/internal/app/icsexport"
	"github.com/calendar-1m/project/internal/app/identity"
	"github.com/calendar-1m/project/internal/app/reminder"
	"github.com/calendar-1m/project/internal/calendar"
	"github.com/calendar-1m/project/internal/platform/config"
	"github.com/calendar-1m/project/internal/platform/logging"
	"github.com/calendar-1m/project/internal/platform/natsutil"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calendar-api",
		Usage: "Serve calendars with validated events, reminders and toast notifications.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file; created with defaults when missing",
				EnvVars: []string{"CALENDAR_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			remindersCommand(),
			exportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("calendar-api failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.LogLevel), nil
}

func sessionOptions(cfg *config.Config, loc *time.Location, logger *slog.Logger) calendarview.Options {
	return calendarview.Options{
		Validator: calendar.NewValidator(cfg.Validation.RejectPastDates, loc),
		Scheduler: reminder.Scheduler{SkipStarted: cfg.Reminders.SkipStarted},
		Timeout:   cfg.Notifications.DisplayTimeout,
		Logger:    logger,
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and live calendar stream.",
		Action: func(c *cli.Context) error {
			runCtx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			be, err := openBackend(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer be.Close()

			var (
				bus       calendarview.Bus
				natsReady func(context.Context) error
			)
			if cfg.NATS.URL != "" {
				client, err := natsutil.ConnectJetStreamWithRetry(runCtx, cfg.NATS.URL, cfg.NATS.ConnectTimeout)
				if err != nil {
					return err
				}
				defer client.Close()
				bus = natsutil.JetStreamBus{JS: client.JS}
				natsReady = func(context.Context) error { return client.Connected() }
				logger.Info("nats fan-out enabled", "url", cfg.NATS.URL)
			}

			sessions := calendarview.NewRegistry(be.Gateway, bus, sessionOptions(cfg, loc, logger))
			defer sessions.CloseAll()

			identitySvc := identity.NewService(be.Identity, identity.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL))
			identitySvc.RefreshTTL = cfg.Auth.RefreshTTL
			identitySvc.OnAuthStateChanged(sessions.HandleAuthState)

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(cfg.Reminders.Refresh, func() {
				sessions.RefreshAll(time.Now())
			}); err != nil {
				return fmt.Errorf("schedule reminder refresh: %w", err)
			}
			if _, err := scheduler.AddFunc("@every 1s", func() {
				sessions.TickAll(time.Now())
			}); err != nil {
				return fmt.Errorf("schedule notification ticks: %w", err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			handler := calendarapi.NewHandler(identitySvc, sessions, cfg.UIOrigin)
			handler.Scheduler = reminder.Scheduler{SkipStarted: cfg.Reminders.SkipStarted}
			handler.Location = loc
			handler.Logger = logger
			handler.Ready = readiness(be.Ready, natsReady)

			// No WriteTimeout: /events is a long-lived stream.
			server := &http.Server{
				Addr:              cfg.Listen,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			logger.Info("calendar api listening", "addr", cfg.Listen, "backend", cfg.Store.Backend, "timezone", loc.String())
			serverErr := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case err := <-serverErr:
				return err
			case <-runCtx.Done():
			}

			// Streams only end once their sessions close.
			sessions.CloseAll()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown failed", "err", err)
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the store schema and exit.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			be, err := openBackend(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer be.Close()
			logger.Info("schema ready", "backend", cfg.Store.Backend)
			return nil
		},
	}
}

// ownerEvents resolves email to its owner id and loads that owner's events.
func ownerEvents(c *cli.Context) ([]calendar.Event, *config.Config, error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	be, err := openBackend(c.Context, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	defer be.Close()

	email := strings.ToLower(strings.TrimSpace(c.String("email")))
	user, err := be.Identity.FindUserByEmail(c.Context, email)
	if err != nil {
		return nil, nil, fmt.Errorf("find user %s: %w", email, err)
	}
	events, err := be.Gateway.ListEvents(c.Context, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return events, cfg, nil
}

func remindersCommand() *cli.Command {
	return &cli.Command{
		Name:  "reminders",
		Usage: "Print the reminders due for a user.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true, Usage: "Account email."},
			&cli.TimestampFlag{Name: "at", Layout: time.RFC3339, Usage: "Evaluate at this instant instead of now."},
		},
		Action: func(c *cli.Context) error {
			events, cfg, err := ownerEvents(c)
			if err != nil {
				return err
			}
			at := time.Now()
			if ts := c.Timestamp("at"); ts != nil {
				at = *ts
			}
			scheduler := reminder.Scheduler{SkipStarted: cfg.Reminders.SkipStarted}
			for n := range scheduler.Due(events, at) {
				fmt.Fprintf(c.App.Writer, "%s\t%s\n", n.DueAt.Format(time.RFC3339), n.Message)
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a user's events as an iCalendar feed.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true, Usage: "Account email."},
			&cli.StringFlag{Name: "out", Usage: "Output file; stdout when empty."},
		},
		Action: func(c *cli.Context) error {
			events, _, err := ownerEvents(c)
			if err != nil {
				return err
			}
			feed := icsexport.Encode(events, time.Now())
			if path := c.String("out"); path != "" {
				return os.WriteFile(path, []byte(feed), 0o600)
			}
			_, err = fmt.Fprint(c.App.Writer, feed)
			return err
		},
	}
}
