// medialab-watch logs into the MediaLab platform, opens the realtime
// channel, and prints notifications until interrupted. Credentials come
// from the MEDIALAB_EMAIL and MEDIALAB_PASSWORD environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Eklista/medialab-sub000/api"
	"github.com/Eklista/medialab-sub000/client"
	"github.com/Eklista/medialab-sub000/hints"
	"github.com/Eklista/medialab-sub000/internal/config"
	"github.com/Eklista/medialab-sub000/realtime"
	"github.com/Eklista/medialab-sub000/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("medialab-watch exited")
	}
	log.Info().Msg("medialab-watch stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname("medialab watch")

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	hintRepo, err := newHintRepo(cfg)
	if err != nil {
		return errors.Wrap(err, "open hint store")
	}
	defer hintRepo.Close()

	apiClient, err := api.NewClient(cfg.APIBaseURL, api.WithHTTPTimeout(cfg.HTTPTimeoutDuration()))
	if err != nil {
		return errors.Wrap(err, "build api client")
	}

	machine, err := session.NewMachine(apiClient, hintRepo,
		session.WithPublicRoutes(cfg.PublicRoutesList()...),
		session.WithSuppressCooldown(cfg.SuppressCooldownDuration()),
	)
	if err != nil {
		return errors.Wrap(err, "build session machine")
	}

	manager, err := realtime.NewManager(cfg.RealtimeURL,
		realtime.WithCookieJar(apiClient.Jar()),
		realtime.WithHintRepo(hintRepo),
		realtime.WithDialTimeout(cfg.DialTimeoutDuration()),
		realtime.WithHeartbeatInterval(cfg.HeartbeatIntervalDuration()),
		realtime.WithMaxReconnectAttempts(cfg.MaxReconnectAttempts),
	)
	if err != nil {
		return errors.Wrap(err, "build realtime manager")
	}

	manager.On(realtime.TypeNotification, func(ev realtime.Event) {
		if ev.Message != nil {
			log.Info().RawJSON("data", ev.Message.Data).Msg("notification")
		}
	})
	manager.On(realtime.EventMaxReconnectReached, func(realtime.Event) {
		log.Warn().Msg("realtime gave up reconnecting, restart to retry")
	})

	monitor := session.NewInactivityMonitor(machine,
		session.WithThreshold(cfg.InactivityThresholdDuration()),
		session.WithPollInterval(cfg.InactivityPollDuration()),
	)

	app, err := client.New(machine, manager, client.WithInactivityMonitor(monitor))
	if err != nil {
		return errors.Wrap(err, "compose client")
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = machine.Login(ctx, api.Credentials{
		Email:    os.Getenv("MEDIALAB_EMAIL"),
		Password: os.Getenv("MEDIALAB_PASSWORD"),
	})
	cancel()
	if err != nil {
		return errors.Wrap(err, "login")
	}
	if user := machine.User(); user != nil {
		log.Info().Str("user", user.FullName()).Msg("authenticated, watching for notifications")
	}

	waitForStopSignal()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return machine.Logout(ctx)
}

func newHintRepo(cfg *config.Config) (hints.Repo, error) {
	if cfg.HintsDBPath == "" {
		return hints.NewInMemoryRepo(), nil
	}
	return hints.NewSQLiteRepo(cfg.HintsDBPath)
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
