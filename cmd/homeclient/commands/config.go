package commands

import (
	"path/filepath"
	"time"

	"github.com/mosaicnetworks/homenode/src/config"
)

//CLIConfig contains configuration for the homeclient command
type CLIConfig struct {
	DataDir  string        `mapstructure:"datadir"`
	HomeAddr string        `mapstructure:"home-addr"`
	HomeID   string        `mapstructure:"home"`
	Realm    string        `mapstructure:"realm"`
	Ping     string        `mapstructure:"ping"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Discard  bool          `mapstructure:"discard"`
	LogLevel string        `mapstructure:"log"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		DataDir:  filepath.Join(config.HomeDir(), ".homeclient"),
		HomeAddr: "ws://" + config.DefaultBindAddr,
		Realm:    config.DefaultRealm,
		Ping:     "hello",
		Timeout:  config.DefaultTimeout,
		LogLevel: "debug",
	}
}
