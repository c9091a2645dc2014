// Package generator abstracts the text completion provider behind a small
// interface so the rest of the bot never touches HTTP details.
package generator

import (
	"context"
	"errors"
)

var (
	// ErrRateLimit is returned when the provider rejects a request for
	// quota reasons. Callers may retry with backoff.
	ErrRateLimit = errors.New("generator: rate limited")

	// ErrEmptyCompletion is returned when the provider answers without
	// usable text.
	ErrEmptyCompletion = errors.New("generator: empty completion")

	// ErrUnconfigured is returned by the no-op generator.
	ErrUnconfigured = errors.New("generator: not configured")
)

// Generator produces a completion for a system prompt and user content.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}
