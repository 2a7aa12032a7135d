package scope

import "errors"

var (
	// ErrUnscopedRequest marks a request that cannot be mapped to any
	// active strategy. Fatal to the request.
	ErrUnscopedRequest = errors.New("request is out of scope")

	// ErrClassificationFailed marks LLM transport or parse failures in the
	// scope step. The classifier never guesses heuristically instead.
	ErrClassificationFailed = errors.New("scope classification failed")
)
