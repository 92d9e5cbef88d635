package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/config"
	"github.com/mosaicnetworks/homenode/src/connector"
	"github.com/mosaicnetworks/homenode/src/crypto/keys"
	"github.com/mosaicnetworks/homenode/src/gateway"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/net/wamp"
	"github.com/mosaicnetworks/homenode/src/profile"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	_config = NewDefaultCLIConfig()
	logger  *logrus.Logger
)

func init() {
	RootCmd.Flags().String("datadir", _config.DataDir, "Directory holding the client's key")
	RootCmd.Flags().String("home-addr", _config.HomeAddr, "Address of the home to connect to")
	RootCmd.Flags().String("home", _config.HomeID, "Profile id of the home")
	RootCmd.Flags().String("realm", _config.Realm, "WAMP realm")
	RootCmd.Flags().String("ping", _config.Ping, "Text sent to the home once logged in")
	RootCmd.Flags().Duration("timeout", _config.Timeout, "Router response timeout")
	RootCmd.Flags().Bool("discard", _config.Discard, "discard output to stderr and sdout")
	RootCmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
}

//RootCmd is the root command for homeclient
var RootCmd = &cobra.Command{
	Use:     "homeclient",
	Short:   "Sample client of a home node",
	PreRunE: loadConfig,
	RunE:    runClient,
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runClient(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	entry := logger.WithField("component", "HOMECLIENT")

	homeID, err := identity.ParseProfileID(_config.HomeID)
	if err != nil {
		return fmt.Errorf("--home: %v", err)
	}

	key, _, err := keys.NewSimpleKeyfile(filepath.Join(_config.DataDir, config.DefaultKeyfile)).ReadOrGenerate(keys.Ed25519)
	if err != nil {
		return err
	}
	s, err := signer.New(key)
	if err != nil {
		return err
	}

	transport := wamp.NewTransport(wamp.TransportConfig{
		Realm:           _config.Realm,
		ResponseTimeout: _config.Timeout,
	}, entry)

	remote, err := transport.Repo(ctx, _config.HomeAddr)
	if err != nil {
		return err
	}
	defer remote.Close()

	homeProfile, err := remote.Load(ctx, homeID)
	if err != nil {
		return err
	}

	c := connector.New(entry, transport)
	defer c.Close()

	p, err := signer.Profile(s, identity.Persona{})
	if err != nil {
		return err
	}

	gw, err := gateway.New(identity.OwnProfile{Profile: p},
		s,
		profile.NewMultiRepo(profile.NewInmemRepo(homeProfile), remote),
		c,
		entry)
	if err != nil {
		return err
	}

	if _, err := gw.RegisterHome(ctx, homeID, nil); err != nil {
		if !errors.Is(err, common.ErrRegistrationFailed) {
			return err
		}
		// Registered by an earlier run.
		if _, err := gw.Claim(ctx, homeID); err != nil {
			return err
		}
	}

	fmt.Printf("Profile %s is hosted by %s\n", s.ProfileID(), homeID)

	sess, err := gw.Login(ctx)
	if err != nil {
		return err
	}
	defer gw.Logout()

	pong, err := sess.Ping(ctx, _config.Ping)
	if err != nil {
		return err
	}
	fmt.Printf("Ping: %s\n", pong)

	return printEvents(ctx, gw, sess.Events(ctx))
}

// printEvents prints the profile's events until interrupted.
func printEvents(ctx context.Context, gw *gateway.Gateway, events *common.Stream[home.ProfileEvent]) error {
	for {
		ev, err := events.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, common.ErrStreamCancelled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fmt.Printf("Event: %s\n", ev.Kind)
		if err := gw.ProcessEvent(ctx, ev); err != nil {
			logger.WithError(err).Warn("Processing event")
		}
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

func loadConfig(cmd *cobra.Command, args []string) error {

	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		return err
	}

	_config, err = parseConfig()
	if err != nil {
		return err
	}

	logger = newLogger()
	logger.Level = config.LogLevel(_config.LogLevel)

	logger.WithFields(logrus.Fields{
		"datadir":   _config.DataDir,
		"home-addr": _config.HomeAddr,
		"home":      _config.HomeID,
		"realm":     _config.Realm,
		"discard":   _config.Discard,
		"log":       _config.LogLevel,
	}).Debug("RUN")

	return nil
}

//Retrieve the default environment configuration.
func parseConfig() (*CLIConfig, error) {
	conf := NewDefaultCLIConfig()
	err := viper.Unmarshal(conf)
	if err != nil {
		return nil, err
	}
	return conf, err
}

func newLogger() *logrus.Logger {
	logger := logrus.New()

	pathMap := lfshook.PathMap{}

	_, err := os.OpenFile("homeclient_info.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open homeclient_info.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = "homeclient_info.log"
	}

	_, err = os.OpenFile("homeclient_debug.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open homeclient_debug.log file, using default stderr")
	} else {
		pathMap[logrus.DebugLevel] = "homeclient_debug.log"
	}

	if err == nil && _config.Discard {
		logger.Out = io.Discard
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}
