package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type JSONConfig struct {
	Output string
}

func (c JSONConfig) Validate() error {
	return validateOutputDir(c.Output)
}

func LoadJSONConfigFromCLI() JSONConfig {
	return JSONConfig{
		Output: viper.GetString("json-out"),
	}
}

type TSVConfig struct {
	Output string
}

func (c TSVConfig) Validate() error {
	return validateOutputDir(c.Output)
}

func LoadTSVConfigFromCLI() TSVConfig {
	return TSVConfig{
		Output: viper.GetString("tsv-out"),
	}
}

func validateOutputDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("missing output directory")
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return fmt.Errorf("output path '%s' is not a directory", dir)
	}
	return nil
}
