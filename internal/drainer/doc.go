// Package drainer implements the stateful RPC-sequence classifier that
// recognizes wallet-drainer attack shapes: rapid asset enumeration
// followed by transaction preparation and a signature or send request.
//
// State is kept per session key and never persisted. Rules re-evaluate on
// every qualifying observation; duplicate-alert suppression is the alert
// hub's job, not the analyzer's.
package drainer
