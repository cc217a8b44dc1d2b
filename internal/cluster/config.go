package cluster

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrInvalidConfig is returned by FindDuplicates and Config.Validate when a
// setting is out of range.
var ErrInvalidConfig = errors.New("invalid clustering config")

// Default clustering settings.
const (
	DefaultPrefixLen      = 8
	DefaultExactThreshold = 100.0
	DefaultNearThreshold  = 98.0
)

// Config controls duplicate detection.
type Config struct {
	// PrefixLen is the number of leading hex characters used to bucket
	// candidates for near-duplicate comparison.
	PrefixLen int
	// ExactThreshold labels a near group as exact when every member scores
	// at least this much against the anchor.
	ExactThreshold float64
	// NearThreshold is the minimum similarity for joining an anchor's group.
	NearThreshold float64
	// Workers bounds concurrent bucket processing. Zero means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		PrefixLen:      DefaultPrefixLen,
		ExactThreshold: DefaultExactThreshold,
		NearThreshold:  DefaultNearThreshold,
	}
}

// Validate checks ranges. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if c.PrefixLen < 1 {
		return fmt.Errorf("%w: prefix length must be at least 1, got %d", ErrInvalidConfig, c.PrefixLen)
	}
	if c.ExactThreshold < 0 || c.ExactThreshold > 100 {
		return fmt.Errorf("%w: exact threshold must be within [0, 100], got %v", ErrInvalidConfig, c.ExactThreshold)
	}
	if c.NearThreshold < 0 || c.NearThreshold > 100 {
		return fmt.Errorf("%w: near threshold must be within [0, 100], got %v", ErrInvalidConfig, c.NearThreshold)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
