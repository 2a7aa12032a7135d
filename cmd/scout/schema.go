package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/strategy"
)

// SchemaCmd generates JSON Schema for the config file or the strategy
// document format. Output goes to stdout.
type SchemaCmd struct {
	Target  string `arg:"" help:"Schema target: config or strategy." enum:"config,strategy" default:"config"`
	Compact bool   `short:"C" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var schema *jsonschema.Schema
	switch c.Target {
	case "config":
		schema = reflector.Reflect(&config.Config{})
		schema.Title = "Scout Configuration Schema"
		schema.Description = "Service configuration for the scout research service"
	case "strategy":
		schema = reflector.Reflect(&strategy.Strategy{})
		schema.Title = "Scout Strategy Schema"
		schema.Description = "Declarative research strategy document"
	default:
		return fmt.Errorf("unknown schema target %q", c.Target)
	}
	schema.Version = "http://json-schema.org/draft-07/schema#"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(schema)
}
