package strategy

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/scopeworks/scout/pkg/config"
)

// Source supplies the raw strategy, index and settings documents from the
// durable store. Implementations: the sqlite store and the dev file tree.
type Source interface {
	StrategyDocs(ctx context.Context) ([][]byte, error)
	IndexDoc(ctx context.Context) ([]byte, error)
	SettingsDoc(ctx context.Context) ([]byte, error)
}

// Builder accumulates validated documents and produces the immutable Cache.
// The builder/handle split is the immutability discipline: after Build there
// is no mutation API, and further Add calls panic.
type Builder struct {
	strategies map[string]*Strategy
	index      []IndexEntry
	settings   *config.GlobalSettings
	built      bool
}

func NewBuilder() *Builder {
	return &Builder{strategies: make(map[string]*Strategy)}
}

// AddStrategy parses and validates one strategy document. Duplicate slugs
// are rejected; slugs are globally unique.
func (b *Builder) AddStrategy(doc []byte) error {
	b.mustBeMutable()

	var s Strategy
	if err := yaml.Unmarshal(doc, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if _, exists := b.strategies[s.Meta.Slug]; exists {
		return fmt.Errorf("%w: duplicate slug %q", ErrInvalidStrategy, s.Meta.Slug)
	}
	b.strategies[s.Meta.Slug] = &s
	return nil
}

// SetIndex parses the strategy index document.
func (b *Builder) SetIndex(doc []byte) error {
	b.mustBeMutable()

	var index struct {
		Strategies []IndexEntry `yaml:"strategies" json:"strategies"`
	}
	if err := yaml.Unmarshal(doc, &index); err != nil {
		return fmt.Errorf("failed to parse strategy index: %w", err)
	}
	b.index = index.Strategies
	return nil
}

// SetSettings parses and validates the global settings document.
func (b *Builder) SetSettings(doc []byte) error {
	b.mustBeMutable()

	var settings config.GlobalSettings
	if err := yaml.Unmarshal(doc, &settings); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	b.settings = &settings
	return nil
}

// Build cross-validates everything and returns the read-only cache. The
// builder is unusable afterwards.
func (b *Builder) Build() (*Cache, error) {
	b.mustBeMutable()

	if len(b.strategies) == 0 {
		return nil, fmt.Errorf("no strategies loaded; refusing to serve")
	}
	if b.settings == nil {
		return nil, fmt.Errorf("no settings loaded; refusing to serve")
	}
	for _, entry := range b.index {
		if err := entry.validate(b.strategies); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
		}
	}

	index := make([]IndexEntry, len(b.index))
	copy(index, b.index)
	sort.SliceStable(index, func(i, j int) bool {
		if index[i].Priority != index[j].Priority {
			return index[i].Priority < index[j].Priority
		}
		return index[i].Slug < index[j].Slug
	})

	b.built = true
	return &Cache{
		strategies: b.strategies,
		index:      index,
		settings:   b.settings,
	}, nil
}

func (b *Builder) mustBeMutable() {
	if b.built {
		panic(ErrImmutableCache)
	}
}

// Load reads every document from the source through a fresh builder.
// Any failure here is boot-fatal; the process must not serve requests
// from a partial cache.
func Load(ctx context.Context, source Source) (*Cache, error) {
	builder := NewBuilder()

	docs, err := source.StrategyDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategies: %w", err)
	}
	for _, doc := range docs {
		if err := builder.AddStrategy(doc); err != nil {
			return nil, err
		}
	}

	indexDoc, err := source.IndexDoc(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy index: %w", err)
	}
	if err := builder.SetIndex(indexDoc); err != nil {
		return nil, err
	}

	settingsDoc, err := source.SettingsDoc(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := builder.SetSettings(settingsDoc); err != nil {
		return nil, err
	}

	return builder.Build()
}

// Cache is the read-only strategy/settings handle served to the rest of
// the process. It is safe for unsynchronized concurrent reads.
type Cache struct {
	strategies map[string]*Strategy
	index      []IndexEntry
	settings   *config.GlobalSettings
}

// GetStrategy returns the strategy for slug, or ErrStrategyNotFound.
func (c *Cache) GetStrategy(slug string) (*Strategy, error) {
	s, ok := c.strategies[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStrategyNotFound, slug)
	}
	return s, nil
}

// Entry returns the index entry for slug.
func (c *Cache) Entry(slug string) (IndexEntry, bool) {
	for _, entry := range c.index {
		if entry.Slug == slug {
			return entry, true
		}
	}
	return IndexEntry{}, false
}

// SelectStrategy picks the active entry matching the tuple exactly,
// preferring the smallest priority with ties broken by lexicographic slug.
// The index is already sorted that way, so the first match wins.
func (c *Cache) SelectStrategy(category string, window TimeWindow, depth Depth) (string, bool) {
	for _, entry := range c.index {
		if !entry.Active {
			continue
		}
		if entry.Category == category && entry.TimeWindow == window && entry.Depth == depth {
			return entry.Slug, true
		}
	}
	return "", false
}

// Index returns a copy of the priority-sorted index.
func (c *Cache) Index() []IndexEntry {
	out := make([]IndexEntry, len(c.index))
	copy(out, c.index)
	return out
}

// Settings returns the global settings document.
func (c *Cache) Settings() *config.GlobalSettings {
	return c.settings
}
