// Package environment reads configuration from environment variables.
//
// Every helper follows the same shape: read one variable and fall back to
// a default when it is unset, empty, or unparseable. Only RequiredString
// returns an error, so callers decide what a missing value means.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StringOr returns the named variable, or defaultValue when unset or
// empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the named variable or an error when it is unset
// or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the named variable with strconv.ParseBool semantics,
// falling back to defaultValue when unset or unparseable.
func BoolOr(name string, defaultValue bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// IntOr parses the named variable as a decimal integer, falling back to
// defaultValue when unset or unparseable.
func IntOr(name string, defaultValue int) int {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// FloatOr parses the named variable as a float64, falling back to
// defaultValue when unset or unparseable. Used for probability knobs.
func FloatOr(name string, defaultValue float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// DurationOr parses the named variable as a time.Duration ("30s", "5m"),
// falling back to defaultValue when unset or unparseable.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
