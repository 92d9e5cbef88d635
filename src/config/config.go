package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/crypto/keys"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the home's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultCertFile is the default name of the file containing the TLS
	// certificate of the WebSocket listener.
	DefaultCertFile = "cert.pem"

	// DefaultTLSKeyFile is the default name of the file containing the TLS
	// private key of the WebSocket listener.
	DefaultTLSKeyFile = "key.pem"
)

// Default configuration values.
const (
	DefaultLogLevel        = "debug"
	DefaultBindAddr        = "127.0.0.1:1443"
	DefaultServiceAddr     = "127.0.0.1:8000"
	DefaultRealm           = "homenode"
	DefaultTimeout         = 5000 * time.Millisecond
	DefaultCacheSize       = 10000
	DefaultChannelCapacity = 16
	DefaultStore           = false
	DefaultKeyType         = "ed25519"
)

// Config contains all the configuration properties of a home node.
type Config struct {
	// DataDir is the top-level directory containing the node's configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// BindAddr is the local address:port of the WebSocket listener that
	// clients and other homes connect to.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddrs are the addresses published in the home's profile. When
	// empty, the node advertises ws://BindAddr, or wss://BindAddr with TLS.
	AdvertiseAddrs []string `mapstructure:"advertise"`

	// Realm is the WAMP realm the home's procedures are registered in.
	Realm string `mapstructure:"realm"`

	// NoService disables the HTTP status service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package.
	ServiceAddr string `mapstructure:"service-listen"`

	// Timeout bounds the router's answers to WAMP subscriptions and
	// registrations made by the node's outgoing clients.
	Timeout time.Duration `mapstructure:"timeout"`

	// ChannelCapacity is the number of items buffered by call channels and
	// check-in subscriptions before senders block.
	ChannelCapacity int `mapstructure:"channel-capacity"`

	// RequireInvitation rejects registrations that do not carry an invitation
	// signed by the home.
	RequireInvitation bool `mapstructure:"require-invitation"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of profiles in the profile cache.
	CacheSize int `mapstructure:"cache-size"`

	// Directory lists the addresses of other homes whose hosted profiles
	// are looked up when a relation names a profile that is not hosted here.
	Directory []string `mapstructure:"directory"`

	// KeyType is the type of key generated when the data directory holds
	// none: ed25519, secp256k1 or dilithium3.
	KeyType string `mapstructure:"key-type"`

	// TLS serves wss:// with the certificate and key found in the data
	// directory.
	TLS bool `mapstructure:"tls"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the private key of the home. It is read from, or generated into,
	// Keyfile when not set.
	Key keys.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        DefaultLogLevel,
		BindAddr:        DefaultBindAddr,
		ServiceAddr:     DefaultServiceAddr,
		Realm:           DefaultRealm,
		Timeout:         DefaultTimeout,
		ChannelCapacity: DefaultChannelCapacity,
		CacheSize:       DefaultCacheSize,
		Store:           DefaultStore,
		DatabaseDir:     DefaultDatabaseDir(),
		KeyType:         DefaultKeyType,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// CertFile returns the full path of the file containing the TLS certificate.
func (c *Config) CertFile() string {
	return filepath.Join(c.DataDir, DefaultCertFile)
}

// KeyFile returns the full path of the file containing the TLS key.
func (c *Config) KeyFile() string {
	return filepath.Join(c.DataDir, DefaultTLSKeyFile)
}

// Addrs returns the addresses to publish in the home's profile.
func (c *Config) Addrs() []string {
	if len(c.AdvertiseAddrs) > 0 {
		return c.AdvertiseAddrs
	}
	if c.TLS {
		return []string{"wss://" + c.BindAddr}
	}
	return []string{"ws://" + c.BindAddr}
}

// Logger returns a formatted logrus Entry, with prefix set to "homenode".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "homenode")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Homenode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Homenode")
		} else {
			return filepath.Join(home, ".homenode")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
