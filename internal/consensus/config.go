package consensus

import (
	"fmt"
	"time"
)

// Config holds the consensus engine configuration.
type Config struct {
	// NodeID is credited with mining rewards.
	NodeID string

	// Difficulty is the required leading zero run of proof digests.
	Difficulty int

	// MaxConcurrency bounds simultaneous peer requests during conflict resolution.
	MaxConcurrency uint

	// Now returns the timestamp of new blocks. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a configuration using the default difficulty.
func DefaultConfig(nodeID string) Config {
	return Config{
		NodeID:         nodeID,
		Difficulty:     DefaultDifficulty,
		MaxConcurrency: 16,
		Now:            time.Now,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("%w: missing node ID", ErrInvalidConfig)
	}
	if c.Difficulty < 0 || c.Difficulty > MaxDifficulty {
		return fmt.Errorf("%w: difficulty must be between 0 and %d", ErrInvalidConfig, MaxDifficulty)
	}
	if c.MaxConcurrency == 0 {
		return fmt.Errorf("%w: max concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}
