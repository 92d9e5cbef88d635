package commands

import (
	"github.com/mosaicnetworks/homenode/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Home config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Home: *config.NewDefaultConfig(),
	}
}
