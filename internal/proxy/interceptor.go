package proxy

import (
	"log/slog"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/veilrpc/veilrpc/internal/model"
)

// Interceptor is a pure transform over a raw JSON-RPC body. It must not
// perform I/O or block; it receives the body and returns the body to
// forward in its place.
type Interceptor interface {
	// Name identifies the interceptor in logs.
	Name() string

	// Intercept transforms the body. Returning an error leaves the
	// original body untouched.
	Intercept(body []byte) ([]byte, error)
}

// Chain applies interceptors in registration order. A failing or
// panicking interceptor is skipped and the body passes through
// unchanged; interception must never break the forward.
type Chain struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewChain creates an interceptor chain.
func NewChain(logger *slog.Logger, interceptors ...Interceptor) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{interceptors: interceptors, logger: logger}
}

// Apply runs the chain over the body.
func (c *Chain) Apply(body []byte) []byte {
	for _, ic := range c.interceptors {
		body = c.applyOne(ic, body)
	}
	return body
}

func (c *Chain) applyOne(ic Interceptor, body []byte) (out []byte) {
	out = body
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("interceptor panicked, passing body through",
				"interceptor", ic.Name(),
				"panic", r,
			)
			out = body
		}
	}()

	transformed, err := ic.Intercept(body)
	if err != nil {
		c.logger.Debug("interceptor declined",
			"interceptor", ic.Name(),
			"error", err,
		)
		return body
	}
	if transformed == nil {
		return body
	}
	return transformed
}

// commitmentMethods are the query methods whose params accept a
// commitment level in a trailing configuration object.
var commitmentMethods = map[string]bool{
	"getBalance":              true,
	"getAccountInfo":          true,
	"getTokenAccountsByOwner": true,
	"getMultipleAccounts":     true,
	"getProgramAccounts":      true,
	"getLatestBlockhash":      true,
}

// CommitmentInterceptor injects a default commitment level into query
// methods that omit one, so that wallets talking to differently
// configured endpoints see consistent read semantics. Batches pass
// through untouched; their entries already went through the wallet's
// own defaulting.
type CommitmentInterceptor struct {
	// Commitment is the level injected when absent, e.g. "confirmed".
	Commitment string
}

// Name implements Interceptor.
func (ci *CommitmentInterceptor) Name() string { return "commitment-default" }

// Intercept implements Interceptor.
func (ci *CommitmentInterceptor) Intercept(body []byte) ([]byte, error) {
	if ci.Commitment == "" || model.IsBatch(body) {
		return body, nil
	}
	method := gjson.GetBytes(body, "method").String()
	if !commitmentMethods[method] {
		return body, nil
	}

	params := gjson.GetBytes(body, "params")
	if !params.IsArray() {
		return body, nil
	}
	n := len(params.Array())

	// The configuration object is the last positional param when it is
	// an object; otherwise the method was called without one.
	if n > 0 {
		last := params.Array()[n-1]
		if last.IsObject() {
			if last.Get("commitment").Exists() {
				return body, nil
			}
			return sjson.SetBytes(body, "params."+strconv.Itoa(n-1)+".commitment", ci.Commitment)
		}
	}
	return sjson.SetBytes(body, "params."+strconv.Itoa(n), map[string]string{"commitment": ci.Commitment})
}
