package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/veilrpc/veilrpc/internal/model"
)

// DirectTransport forwards without anonymization. It exists so the router
// can treat every route uniformly, including the fallback-to-direct path.
type DirectTransport struct {
	mu    sync.Mutex
	state model.TransportState
}

// NewDirectTransport creates an unstarted direct transport.
func NewDirectTransport() *DirectTransport {
	return &DirectTransport{state: model.StateDisconnected}
}

// Start marks the transport connected. There is nothing to establish.
func (t *DirectTransport) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = model.StateConnected
	return nil
}

// Stop marks the transport disconnected.
func (t *DirectTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = model.StateDisconnected
	return nil
}

// State returns the current lifecycle state.
func (t *DirectTransport) State() model.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Mode returns the direct route mode.
func (t *DirectTransport) Mode() model.RouteMode {
	return model.RouteDirect
}

// HTTPClient returns a plain client with the given timeout.
func (t *DirectTransport) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Dialer returns the direct dialer.
func (t *DirectTransport) Dialer() proxy.Dialer {
	return proxy.Direct
}
