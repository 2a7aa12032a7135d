package strategy

import "errors"

var (
	// ErrStrategyNotFound is returned for lookups of unknown slugs.
	ErrStrategyNotFound = errors.New("strategy not found")

	// ErrInvalidStrategy wraps schema violations found at admission time.
	ErrInvalidStrategy = errors.New("invalid strategy")

	// ErrImmutableCache is the panic value raised when a builder is
	// mutated after Build. Mutation after init is a programmer error.
	ErrImmutableCache = errors.New("strategy cache is immutable after build")
)
