package main

import (
	"context"
	"fmt"

	"github.com/scopeworks/scout/pkg/strategy"
)

// ValidateCmd validates a strategy directory without starting the service.
type ValidateCmd struct {
	Dir string `arg:"" help:"Strategy directory (strategies/, index.yaml, settings.yaml)." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cache, err := strategy.Load(context.Background(), strategy.FileSource{Dir: c.Dir})
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	for _, entry := range cache.Index() {
		status := "active"
		if !entry.Active {
			status = "inactive"
		}
		fmt.Printf("  %-30s %-12s %-8s %-14s %s\n",
			entry.Slug, entry.Category, entry.TimeWindow, entry.Depth, status)
	}
	fmt.Printf("ok: %d strategies\n", len(cache.Index()))
	return nil
}
