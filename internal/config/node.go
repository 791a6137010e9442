package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"
)

type NodeConfig struct {
	ListenAddr       string
	NodeID           string
	Peers            []string
	Difficulty       int
	PeerTimeout      time.Duration
	MaxConcurrency   uint
	MaxRetries       uint
	ResolveInterval  time.Duration
	EnablePrometheus bool
	PrometheusAddr   string
}

func (c NodeConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	if err := validateDifficulty(c.Difficulty); err != nil {
		return err
	}
	if c.PeerTimeout <= 0 {
		return fmt.Errorf("peer timeout must be positive")
	}
	if c.MaxConcurrency == 0 {
		return fmt.Errorf("max concurrency must be positive")
	}
	if c.ResolveInterval < 0 {
		return fmt.Errorf("resolve interval cannot be negative")
	}
	if c.EnablePrometheus && c.PrometheusAddr == "" {
		return fmt.Errorf("missing Prometheus listen address")
	}
	return nil
}

func LoadNodeConfigFromCLI() NodeConfig {
	return NodeConfig{
		ListenAddr:       viper.GetString("listen"),
		NodeID:           viper.GetString("node-id"),
		Peers:            viper.GetStringSlice("peers"),
		Difficulty:       viper.GetInt("difficulty"),
		PeerTimeout:      viper.GetDuration("peer-timeout"),
		MaxConcurrency:   viper.GetUint("max-concurrency"),
		MaxRetries:       viper.GetUint("max-retries"),
		ResolveInterval:  viper.GetDuration("resolve-interval"),
		EnablePrometheus: viper.GetBool("enable-prometheus"),
		PrometheusAddr:   viper.GetString("prometheus-addr"),
	}
}

// maxDifficulty is the number of hex characters in a SHA-256 digest.
const maxDifficulty = 64

func validateDifficulty(d int) error {
	if d < 0 || d > maxDifficulty {
		return fmt.Errorf("difficulty must be between 0 and %d", maxDifficulty)
	}
	return nil
}
