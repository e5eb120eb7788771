package model

import (
	"bytes"
	"encoding/json"
)

// JSONRPCVersion is the protocol version echoed in every envelope.
const JSONRPCVersion = "2.0"

// Standard JSON-RPC 2.0 error codes used by the relay.
//
// Design decision: We only define the codes the relay itself synthesizes.
// Upstream error objects are forwarded verbatim and never re-coded.
const (
	// CodeParseError is returned for an empty or unparseable request body.
	CodeParseError = -32700

	// CodeAllEndpointsFailed is returned when the primary endpoint and every
	// fallback failed for a single forward attempt.
	CodeAllEndpointsFailed = -32000
)

// MsgAllEndpointsFailed is the error message paired with CodeAllEndpointsFailed.
const MsgAllEndpointsFailed = "All RPC endpoints failed"

// Request is a JSON-RPC 2.0 request envelope.
//
// ID and Params are kept as raw JSON so the relay round-trips them
// byte-for-byte: the id must be echoed unchanged whether it is a number,
// a string, or null, and params are opaque to the relay.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
// Result and Error are mutually exclusive; exactly one is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewErrorResponse builds a well-formed error response echoing the given id.
// A nil id is serialized as JSON null, which is what JSON-RPC 2.0 requires
// when the request id could not be determined (e.g. a parse error).
func NewErrorResponse(id json.RawMessage, code int, message string) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// NewAllEndpointsFailedResponse builds the canonical response for a forward
// attempt that exhausted the primary endpoint and every fallback. The id is
// always null: the id-echo guarantee covers responses an endpoint produced,
// and this one never reached an endpoint.
func NewAllEndpointsFailedResponse() *Response {
	return NewErrorResponse(nil, CodeAllEndpointsFailed, MsgAllEndpointsFailed)
}

// IsBatch reports whether the raw body is a JSON-RPC batch (an array of
// envelopes) rather than a single envelope. Leading whitespace is skipped
// per the JSON grammar.
func IsBatch(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
