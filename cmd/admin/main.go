package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jose-hbf/homebaseflights-sub001/internal/app"
	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/config"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/db"
	applog "github.com/jose-hbf/homebaseflights-sub001/internal/infra/log"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/alerts"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/subscribers"
	"github.com/jose-hbf/homebaseflights-sub001/migrations"
)

const usage = `usage: admin <command> [flags]

commands:
  migrate                       apply database migrations
  fetch [-airport JFK]          fetch and store deals
  curate [-airport JFK]         curate stored deals
  send-alerts [-airport JFK] [-frequency daily,weekly]
                                send pending alerts
  prune                         delete stale deals
  subscriber -email E [-airport JFK] [-status S] [-plan P] [-frequency F]
                                create or fix a subscriber
  token -email E                print the unsubscribe token and link
  reminders                     send trial reminders and nurture emails
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	c := &cli{
		cfg: cfg,
		out: os.Stdout,
		open: func(ctx context.Context) (*app.App, error) {
			return app.New(ctx, cfg, logger)
		},
		now: time.Now,
	}
	if err := c.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		logger.Fatal().Err(err).Msg("admin: команда завершилась ошибкой")
	}
}

type cli struct {
	cfg  config.AppConfig
	out  io.Writer
	open func(ctx context.Context) (*app.App, error)
	now  func() time.Time
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	airport := fs.String("airport", "", "IATA code of the departure airport")
	email := fs.String("email", "", "subscriber email")
	status := fs.String("status", "", "subscriber status")
	plan := fs.String("plan", "", "subscriber plan")
	frequency := fs.String("frequency", "", "alert frequency")
	city := fs.String("city", "", "city name shown in emails")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch cmd {
	case "token":
		if *email == "" {
			return fmt.Errorf("%w: -email is required", errUsage)
		}
		fmt.Fprintf(c.out, "token: %s\nunsubscribe: %s\n", domain.ActionToken(*email), domain.UnsubscribeURL(c.cfg.BaseURL, *email))
		return nil
	case "migrate":
		if c.cfg.PG.DSN == "" {
			return domain.ConfigurationError("PG_DSN is not set")
		}
		version, err := db.Migrate(migrations.FS, c.cfg.PG.DSN)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "schema version %d\n", version)
		return nil
	case "fetch", "curate", "send-alerts", "prune", "subscriber", "reminders":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if *airport != "" && !domain.IsAirportSupported(*airport) {
		return domain.UnsupportedAirportError(*airport)
	}
	if cmd == "subscriber" && *email == "" {
		return fmt.Errorf("%w: -email is required", errUsage)
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	switch cmd {
	case "fetch":
		var airports []string
		if *airport != "" {
			airports = []string{domain.NormalizeAirport(*airport)}
		}
		return c.print(a.Deals.FetchAll(ctx, airports))
	case "curate":
		report, err := a.Deals.CurateAirport(ctx, *airport, 0)
		if err != nil {
			return err
		}
		return c.print(report)
	case "send-alerts":
		opts := alerts.OptionsFor(c.now())
		if *frequency != "" {
			freqs, err := alerts.ParseFrequencies(*frequency)
			if err != nil {
				return err
			}
			opts.Frequencies = freqs
		}
		if *airport == "" {
			return c.print(a.Alerts.SendAllAlerts(ctx, opts))
		}
		res, err := a.Alerts.SendAlertsForAirport(ctx, *airport, opts)
		if err != nil {
			return err
		}
		return c.print(res)
	case "prune":
		n, err := a.Deals.Prune(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "pruned %d deals\n", n)
		return nil
	case "subscriber":
		sub, err := a.Subscribers.AdminUpsert(ctx, subscribers.AdminSubscriber{
			Email:     *email,
			Airport:   *airport,
			CityName:  *city,
			Status:    *status,
			Plan:      *plan,
			Frequency: *frequency,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s %s %s/%s %s\n", sub.ID, sub.Email, sub.Status, sub.Plan, sub.HomeAirport)
		return nil
	case "reminders":
		now := c.now()
		reminded, err := a.Reminders.TrialReminders(ctx, now)
		if err != nil {
			return err
		}
		nurtured, err := a.Reminders.SendNurture(ctx, now)
		if err != nil {
			return err
		}
		return c.print(map[string]any{"trialReminders": reminded, "nurture": nurtured})
	}
	return nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
