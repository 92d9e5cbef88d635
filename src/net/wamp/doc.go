// Package wamp exposes a home node over WAMP and connects to remote homes.
//
// The Server registers the home's operations as procedures of a realm on an
// embedded nexus router, reachable over WebSockets (and TLS when a
// certificate is configured). Clients authenticate with a challenge signed
// by their profile key and receive a connection token that every later
// call carries.
//
// Streams travel as pub/sub topics. Subscriptions and call channels are
// opened by a procedure call naming the topic, after the consumer has
// subscribed to it. Every item is a JSON frame; the last frame of a topic
// has Close set and, when the stream ended with an error, the URI of its
// kind.
//
// Call channels are bounded at both ends but the router in between does
// not apply backpressure: frames wait in an unbounded relay queue until
// the local end accepts them.
package wamp
