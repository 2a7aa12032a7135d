package main

import (
	"context"
	"fmt"

	"github.com/scopeworks/scout/pkg/store"
	"github.com/scopeworks/scout/pkg/strategy"
	"gopkg.in/yaml.v3"
)

// ImportCmd loads a strategy directory into the sqlite store. The directory
// is validated as a whole before anything is written.
type ImportCmd struct {
	Dir string `arg:"" help:"Strategy directory to import." type:"path"`
}

func (c *ImportCmd) Run(cli *CLI) error {
	cfg, cleanup, err := loadConfig(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Store.Driver != "sqlite" {
		return fmt.Errorf("import requires the sqlite store driver, got %q", cfg.Store.Driver)
	}

	ctx := context.Background()
	source := strategy.FileSource{Dir: c.Dir}

	// Build the cache first so invalid documents never reach the store.
	if _, err := strategy.Load(ctx, source); err != nil {
		return fmt.Errorf("refusing to import invalid strategies: %w", err)
	}

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	docs, err := source.StrategyDocs(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		slug, err := strategySlug(doc)
		if err != nil {
			return err
		}
		if err := st.PutStrategyDoc(ctx, slug, doc); err != nil {
			return fmt.Errorf("failed to store strategy %q: %w", slug, err)
		}
	}

	index, err := source.IndexDoc(ctx)
	if err != nil {
		return err
	}
	if err := st.PutIndexDoc(ctx, index); err != nil {
		return err
	}

	settings, err := source.SettingsDoc(ctx)
	if err != nil {
		return err
	}
	if err := st.PutSettingsDoc(ctx, settings); err != nil {
		return err
	}

	fmt.Printf("imported %d strategies into %s\n", len(docs), cfg.Store.DSN)
	return nil
}

func strategySlug(doc []byte) (string, error) {
	var s struct {
		Meta struct {
			Slug string `yaml:"slug"`
		} `yaml:"meta"`
	}
	if err := yaml.Unmarshal(doc, &s); err != nil {
		return "", err
	}
	if s.Meta.Slug == "" {
		return "", fmt.Errorf("strategy document missing meta.slug")
	}
	return s.Meta.Slug, nil
}
