// Package transport implements the privacy-transport abstraction: the
// Transport interface plus the Direct, VPN, Tor, and Tor-over-VPN
// implementations behind it.
//
// The request router is transport-agnostic: it asks the resolved Transport
// for an HTTP client and never learns whether bytes leave through a Tor
// circuit, a VPN bridge, or the plain network.
package transport
