// Package proxy implements the local JSON-RPC relay: a loopback-only
// HTTP server that accepts wallet and dApp requests, runs them through
// the interception chain and the detection feed, and forwards them over
// the configured privacy transport to the primary endpoint with ordered
// fallback.
//
// Design decision: The listener binds loopback only and answers with
// permissive CORS. Both are policy, not configuration: the relay exists
// to serve local wallets, and a browser wallet page must be able to
// reach it from any origin. Restricting origins here would only push
// users to disable the relay entirely.
package proxy
