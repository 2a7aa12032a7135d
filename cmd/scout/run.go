package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/scopeworks/scout/pkg/briefing"
	"github.com/scopeworks/scout/pkg/executor"
	"github.com/scopeworks/scout/pkg/scope"
	"github.com/scopeworks/scout/pkg/strategy"
)

// RunCmd executes a single research request and prints the briefing.
type RunCmd struct {
	Request string `arg:"" help:"The research request." placeholder:"REQUEST"`

	Strategy   string `help:"Force a strategy slug, skipping scope classification."`
	Category   string `help:"Override the classified category."`
	TimeWindow string `name:"time-window" help:"Override the time window (day, week, month, year)."`
	Depth      string `help:"Override the depth (brief, overview, deep, comprehensive)."`
}

func (c *RunCmd) Run(cli *CLI) error {
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

	result, err := app.executor.Execute(ctx, executor.Request{
		UserRequest: c.Request,
		Overrides: scope.Overrides{
			StrategySlug: c.Strategy,
			Category:     c.Category,
			TimeWindow:   strategy.TimeWindow(c.TimeWindow),
			Depth:        strategy.Depth(c.Depth),
		},
	})
	if err != nil {
		return err
	}

	b := briefing.Render(result, "", time.Now().UTC())
	fmt.Println(b.Markdown)

	for _, note := range result.Errors {
		app.logger.Warn("Run degraded", "error", note)
	}
	return nil
}
