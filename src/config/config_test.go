package config

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/home1")

	assert.Equal(t, filepath.Join("/tmp/home1", DefaultBadgerFile), conf.DatabaseDir)
	assert.Equal(t, filepath.Join("/tmp/home1", DefaultKeyfile), conf.Keyfile())
	assert.Equal(t, filepath.Join("/tmp/home1", DefaultCertFile), conf.CertFile())

	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/home2")
	assert.Equal(t, "/var/db", conf.DatabaseDir)
}

func TestAddrs(t *testing.T) {
	conf := NewDefaultConfig()
	conf.BindAddr = "10.0.0.1:1443"

	assert.Equal(t, []string{"ws://10.0.0.1:1443"}, conf.Addrs())

	conf.TLS = true
	assert.Equal(t, []string{"wss://10.0.0.1:1443"}, conf.Addrs())

	conf.AdvertiseAddrs = []string{"wss://home.example.org"}
	assert.Equal(t, []string{"wss://home.example.org"}, conf.Addrs())
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, LogLevel("warn"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("bogus"))

	conf := NewTestConfig(t, logrus.InfoLevel)
	assert.Equal(t, "homenode", conf.Logger().Data["prefix"])
}
