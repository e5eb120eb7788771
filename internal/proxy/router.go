package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/veilrpc/veilrpc/internal/alert"
	"github.com/veilrpc/veilrpc/internal/model"
	"github.com/veilrpc/veilrpc/internal/transport"
)

// maxResponseSize caps how much of an upstream response is read.
const maxResponseSize = 32 << 20 // 32 MiB

// forwardedHeaders is the safelist of client headers copied onto
// upstream requests. Credentials are needed for keyed RPC endpoints;
// everything else the client sends (Origin, Referer, User-Agent,
// cookies) identifies the user and is stripped before the request
// leaves the relay.
var forwardedHeaders = []string{"Authorization", "X-Api-Key"}

// Router forwards a JSON-RPC body to the primary endpoint and, on
// failure, walks the fallback list in declared order. Endpoints are
// never raced: ordering is a stated guarantee, and racing would leak
// the request to endpoints the user ranked lower for a reason.
type Router struct {
	endpoints []string // primary first, then fallbacks in order
	tr        transport.Transport
	timeout   time.Duration // per-hop
	alerts    *alert.Hub
	stats     *model.ProxyStats
	reqChain  *Chain
	respChain *Chain
	logger    *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAlertHub sets the hub used for failover notifications.
func WithAlertHub(h *alert.Hub) RouterOption {
	return func(rt *Router) { rt.alerts = h }
}

// WithStats sets the counters the router records into.
func WithStats(s *model.ProxyStats) RouterOption {
	return func(rt *Router) { rt.stats = s }
}

// WithRequestChain sets the interceptors applied before forwarding.
func WithRequestChain(c *Chain) RouterOption {
	return func(rt *Router) { rt.reqChain = c }
}

// WithResponseChain sets the interceptors applied to upstream responses.
func WithResponseChain(c *Chain) RouterOption {
	return func(rt *Router) { rt.respChain = c }
}

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// NewRouter creates a router over the given endpoints and transport.
// The per-hop timeout should be longer for Tor and VPN routes.
func NewRouter(endpoints []string, tr transport.Transport, timeout time.Duration, opts ...RouterOption) *Router {
	rt := &Router{
		endpoints: endpoints,
		tr:        tr,
		timeout:   timeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Forward relays one JSON-RPC body and returns the response body to
// write back. The returned body is always a well-formed JSON-RPC
// payload: upstream responses verbatim (after the response chain), or a
// synthesized error envelope when no endpoint could serve the call.
// Only safelisted entries of clientHeader reach the upstream; nil is
// fine when the caller has no client headers to offer.
func (rt *Router) Forward(ctx context.Context, body []byte, clientHeader http.Header) []byte {
	if _, ok := validate(body); !ok {
		// A body we cannot parse is not retried against fallbacks; no
		// endpoint will fare better.
		return mustMarshal(model.NewErrorResponse(nil, model.CodeParseError, "Parse error"))
	}

	if rt.reqChain != nil {
		body = rt.reqChain.Apply(body)
	}

	client := rt.tr.HTTPClient(rt.timeout)
	primaryFailed := false
	for i, endpoint := range rt.endpoints {
		resp, err := rt.post(ctx, client, endpoint, body, clientHeader)
		if err != nil {
			rt.logger.Warn("upstream request failed",
				"endpoint", endpoint,
				"attempt", i+1,
				"error", err,
			)
			if i == 0 {
				primaryFailed = true
			}
			if ctx.Err() != nil {
				break // client gone, stop walking the list
			}
			continue
		}

		if primaryFailed {
			rt.notify(model.Notification{
				Type:    model.NotifyRPCFailover,
				Title:   "RPC Failover",
				Message: fmt.Sprintf("Primary endpoint failed, served by fallback %d", i),
			})
		}
		if rt.respChain != nil {
			resp = rt.respChain.Apply(resp)
		}
		return resp
	}

	if rt.stats != nil {
		rt.stats.RecordError()
	}
	rt.notify(model.Notification{
		Type:    model.NotifyRPCAllFailed,
		Title:   "RPC All Failed",
		Message: fmt.Sprintf("All %d RPC endpoints failed", len(rt.endpoints)),
	})
	return mustMarshal(model.NewAllEndpointsFailedResponse())
}

// post performs one upstream attempt. Any transport error or 5xx status
// counts as a hop failure; JSON-RPC error objects ride a 200 and are
// forwarded verbatim, they are the upstream's answer, not a failure.
func (rt *Router) post(ctx context.Context, client *http.Client, endpoint string, body []byte, clientHeader http.Header) ([]byte, error) {
	hopCtx, cancel := context.WithTimeout(ctx, rt.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hopCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, name := range forwardedHeaders {
		if v := clientHeader.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	return data, nil
}

// notify delivers a router notification when a hub is wired.
func (rt *Router) notify(n model.Notification) {
	if rt.alerts == nil {
		return
	}
	rt.alerts.Notify(n)
}

// validate checks that the body parses as a single envelope or a batch
// and returns the request id for error synthesis. Batches get a null
// id; the caller cannot attribute a total failure to one entry.
func validate(body []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return nil, false
	}
	if model.IsBatch(trimmed) {
		if len(gjson.ParseBytes(trimmed).Array()) == 0 {
			return nil, false // empty batch is invalid per JSON-RPC 2.0
		}
		return nil, true
	}
	if !gjson.ParseBytes(trimmed).IsObject() {
		return nil, false
	}
	if raw := gjson.GetBytes(trimmed, "id"); raw.Exists() {
		return json.RawMessage(raw.Raw), true
	}
	return nil, true
}

// mustMarshal serializes a response the relay itself built. These
// structs cannot fail to marshal.
func mustMarshal(resp *model.Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`)
	}
	return data
}
