// Package config defines the configuration for a home node.
//
// Regardless of how a home is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// where it expects to find a few additional files:
//
//	priv_key // a plain text file containing the raw private key (cf. homenode keygen).
//	cert.pem // (optional) an x509 certificate for the WebSocket listener.
//	key.pem  // (optional) the private key of cert.pem.
//	homenode.toml // (optional) configuration overrides read by the command line.
package config
