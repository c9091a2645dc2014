package generator

import "context"

// noopGenerator is used when no API key is configured. Every call fails
// with ErrUnconfigured, which callers turn into canned fallback lines.
type noopGenerator struct{}

// NewNoop returns a Generator that always fails with ErrUnconfigured.
func NewNoop() Generator {
	return noopGenerator{}
}

func (noopGenerator) Generate(context.Context, string, string) (string, error) {
	return "", ErrUnconfigured
}
