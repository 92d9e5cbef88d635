package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/homenode/src/homenode"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a home node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runHome,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runHome(cmd *cobra.Command, args []string) error {
	engine := homenode.NewEngine(&_config.Home)

	if err := engine.Init(); err != nil {
		_config.Home.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	go func() {
		signalCh := make(chan os.Signal, 1)
		signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
		<-signalCh
		if err := engine.Shutdown(); err != nil {
			_config.Home.Logger().WithError(err).Error("Shutdown")
		}
	}()

	return engine.Run()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Home.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Home.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", _config.Home.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Home.BindAddr, "Listen IP:Port of the WebSocket server")
	cmd.Flags().StringSliceP("advertise", "a", _config.Home.AdvertiseAddrs, "Addresses published in the home profile")
	cmd.Flags().String("realm", _config.Home.Realm, "WAMP realm")
	cmd.Flags().Bool("tls", _config.Home.TLS, "Serve wss:// with cert.pem and key.pem from the datadir")
	cmd.Flags().DurationP("timeout", "t", _config.Home.Timeout, "Router response timeout")
	cmd.Flags().Int("channel-capacity", _config.Home.ChannelCapacity, "Buffered items per call channel")
	cmd.Flags().StringSlice("directory", _config.Home.Directory, "Addresses of homes to look up profiles from")

	// Registration
	cmd.Flags().Bool("require-invitation", _config.Home.RequireInvitation, "Only accept registrations with an invitation")
	cmd.Flags().String("key-type", _config.Home.KeyType, "Type of the key generated on first run")

	// Service
	cmd.Flags().Bool("no-service", _config.Home.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Home.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Home.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Home.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.Home.CacheSize, "Number of profiles in the LRU cache")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Home.SetDataDir(_config.Home.DataDir)

	logFields := logrus.Fields{
		"home.DataDir":           _config.Home.DataDir,
		"home.BindAddr":          _config.Home.BindAddr,
		"home.AdvertiseAddrs":    _config.Home.AdvertiseAddrs,
		"home.Realm":             _config.Home.Realm,
		"home.TLS":               _config.Home.TLS,
		"home.ServiceAddr":       _config.Home.ServiceAddr,
		"home.NoService":         _config.Home.NoService,
		"home.Store":             _config.Home.Store,
		"home.LogLevel":          _config.Home.LogLevel,
		"home.Moniker":           _config.Home.Moniker,
		"home.Timeout":           _config.Home.Timeout,
		"home.ChannelCapacity":   _config.Home.ChannelCapacity,
		"home.CacheSize":         _config.Home.CacheSize,
		"home.Directory":         _config.Home.Directory,
		"home.RequireInvitation": _config.Home.RequireInvitation,
	}

	if _config.Home.Store {
		logFields["home.DatabaseDir"] = _config.Home.DatabaseDir
	}

	_config.Home.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/homenode.toml (.json, .yaml also work)
	viper.SetConfigName("homenode")           // name of config file (without extension)
	viper.AddConfigPath(_config.Home.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Home.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Home.Logger().Debugf("No config file found in: %s", _config.Home.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
