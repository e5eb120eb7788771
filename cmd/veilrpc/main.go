// Package main provides the entry point for the VeilRPC CLI.
//
// VeilRPC is a local privacy-preserving JSON-RPC relay for blockchain
// wallets. It forwards wallet traffic over direct, Tor, VPN, or
// Tor-over-VPN routes with ordered endpoint failover, and inspects the
// stream for phishing domains and wallet-drainer call sequences.
//
// Usage:
//
//	veilrpc serve
//	veilrpc check <domain>
//
// See --help for all available options.
package main

// main is the entry point for VeilRPC.
func main() {
	Execute()
}
