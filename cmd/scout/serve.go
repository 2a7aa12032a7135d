package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/scopeworks/scout/pkg/server"
	"github.com/scopeworks/scout/pkg/webhook"
)

// ServeCmd starts the HTTP service.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, cleanup, err := loadConfig(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	var subs server.SubscriptionStore
	if app.store != nil {
		subs = app.store
	}
	srv := server.New(
		cfg.Server,
		app.executor,
		subs,
		webhook.New(cfg.Webhook),
		cfg.Executor.MaxFanOut,
		app.logger,
	)
	return srv.Start(ctx)
}
