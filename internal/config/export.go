package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ExportConfig struct {
	Difficulty       int
	MaxRetries       uint
	PeerTimeout      time.Duration
	PollInterval     time.Duration
	LiveMonitoring   bool
	ReIndex          bool
	EnablePrometheus bool
	PrometheusAddr   string
}

func (c ExportConfig) Validate() error {
	if err := validateDifficulty(c.Difficulty); err != nil {
		return err
	}
	if c.PeerTimeout <= 0 {
		return fmt.Errorf("peer timeout must be positive")
	}
	if c.LiveMonitoring && c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive when --live is set")
	}
	if c.EnablePrometheus && c.PrometheusAddr == "" {
		return fmt.Errorf("missing Prometheus listen address")
	}
	return nil
}

func LoadExportConfigFromCLI() ExportConfig {
	return ExportConfig{
		Difficulty:       viper.GetInt("difficulty"),
		MaxRetries:       viper.GetUint("max-retries"),
		PeerTimeout:      viper.GetDuration("peer-timeout"),
		PollInterval:     viper.GetDuration("poll-interval"),
		LiveMonitoring:   viper.GetBool("live"),
		ReIndex:          viper.GetBool("reindex"),
		EnablePrometheus: viper.GetBool("enable-prometheus"),
		PrometheusAddr:   viper.GetString("prometheus-addr"),
	}
}
