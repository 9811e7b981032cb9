// Package app assembles the bot: bootstrap (logger, database, migrations),
// handler wiring, and the Telegram run options consumed by the core runner.
package app

import (
	"context"
	"fmt"
	"time"

	corebootstrap "github.com/m3rciful/groupbot/core/bootstrap"
	corecmd "github.com/m3rciful/groupbot/core/cmd"
	coretelegram "github.com/m3rciful/groupbot/core/telegram"
	"github.com/m3rciful/groupbot/core/telegram/router"
	"github.com/m3rciful/groupbot/core/telegram/sender"
	"github.com/m3rciful/groupbot/core/telegram/state"
	"github.com/m3rciful/groupbot/internal/bot"
	"github.com/m3rciful/groupbot/internal/bot/flows"
	"github.com/m3rciful/groupbot/internal/notify"
	"github.com/m3rciful/groupbot/internal/scheduler"
	"github.com/m3rciful/groupbot/internal/storage"
)

// App holds the assembled application.
type App struct {
	cfg      *Config
	store    *storage.Storage
	sessions state.Manager
	location *time.Location
}

// Bootstrap initializes infrastructure and builds the App.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	res, err := corebootstrap.Run(corebootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		store:    storage.New(res.DB),
		sessions: state.NewMemoryManager(),
		location: loc,
	}, nil
}

// TelegramRunOptions wires handlers, flows, middleware, and the reminder job.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	coreCfg := a.cfg.CoreConfig()
	reg := coretelegram.NewRegistry()
	disp := sender.NewDispatcher(sender.Options{})

	// The bot handle only exists once RunTelegram has built the transport;
	// the notifier is bound in OnStart.
	notifier := notify.New(disp)

	fl := flows.New(a.store, a.sessions, notifier, flows.Config{
		ApprovalRequired: a.cfg.Groups.ApprovalRequired,
		AdminTelegramID:  coreCfg.Telegram.AdminID,
		Location:         a.location,
	})
	fl.Register()

	handlers := bot.New(a.store, a.sessions, fl, notifier, bot.Config{
		AdminTelegramID: coreCfg.Telegram.AdminID,
		Location:        a.location,
	})
	if err := handlers.RegisterRoutes(reg); err != nil {
		return coretelegram.RunOptions{}, err
	}

	routes := []coretelegram.Route{
		router.CallbackRoute(reg, router.CallbackOptions{}),
	}
	routes = append(routes, router.TextRoutes(a.sessions, reg, router.TextOptions{})...)
	routes = append(routes, router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: coreCfg.Telegram.AdminID,
	})...)

	sched := scheduler.New(a.store, notifier, scheduler.Config{
		Hour:     a.cfg.Reminders.Hour,
		Location: a.location,
	})

	return coretelegram.RunOptions{
		Config:      coreCfg,
		Registry:    reg,
		Dispatcher:  disp,
		Middlewares: coretelegram.DefaultMiddlewares(coreCfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			notifier.Bind(rt.Bot)
			go sched.Run(ctx)
			return nil
		},
	}, nil
}
