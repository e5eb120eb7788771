package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veilrpc/veilrpc/internal/alert"
	"github.com/veilrpc/veilrpc/internal/model"
	"github.com/veilrpc/veilrpc/internal/transport"
)

// countingSender records alert notifications by type.
type countingSender struct {
	mu    sync.Mutex
	byTyp map[model.NotificationType]int
}

func newCountingSender() *countingSender {
	return &countingSender{byTyp: make(map[model.NotificationType]int)}
}

func (c *countingSender) SendNative(n model.Notification) error {
	c.record(n)
	return nil
}

func (c *countingSender) SendOverlay(n model.Notification) error {
	c.record(n)
	return nil
}

func (c *countingSender) record(n model.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTyp[n.Type]++
}

func (c *countingSender) count(t model.NotificationType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byTyp[t]
}

func newTestRouter(t *testing.T, sender *countingSender, endpoints ...string) *Router {
	t.Helper()

	tr := transport.NewDirectTransport()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("failed to start transport: %v", err)
	}
	// Overlay only, so each notification is counted exactly once.
	hub := alert.NewHub(
		alert.WithOverlaySender(sender),
		alert.WithMaxPerMinute(100),
	)
	return NewRouter(endpoints, tr, 2*time.Second, WithAlertHub(hub))
}

// upstream returns a test server that answers every POST with the given
// status and body, counting hits.
func upstream(t *testing.T, status int, body string, hits *atomic.Int64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okResponse = `{"jsonrpc":"2.0","id":1,"result":"ok"}`

func TestForwardPrimarySuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	primary := upstream(t, http.StatusOK, okResponse, &hits)
	var fallbackHits atomic.Int64
	fallback := upstream(t, http.StatusOK, okResponse, &fallbackHits)

	sender := newCountingSender()
	rt := newTestRouter(t, sender, primary.URL, fallback.URL)

	resp := rt.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"getSlot"}`), nil)
	if string(resp) != okResponse {
		t.Errorf("response = %s, want %s", resp, okResponse)
	}
	if fallbackHits.Load() != 0 {
		t.Error("fallback must not be contacted when the primary succeeds")
	}
	if sender.count(model.NotifyRPCFailover) != 0 {
		t.Error("no failover alert expected on primary success")
	}
}

func TestForwardFailover(t *testing.T) {
	t.Parallel()

	t.Run("fallback serves after primary failure", func(t *testing.T) {
		t.Parallel()

		primary := upstream(t, http.StatusInternalServerError, "", nil)
		fallback := upstream(t, http.StatusOK, okResponse, nil)

		sender := newCountingSender()
		rt := newTestRouter(t, sender, primary.URL, fallback.URL)

		resp := rt.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"getSlot"}`), nil)
		if string(resp) != okResponse {
			t.Errorf("response = %s, want fallback body", resp)
		}
		if got := sender.count(model.NotifyRPCFailover); got != 1 {
			t.Errorf("failover alerts = %d, want exactly 1", got)
		}
		if sender.count(model.NotifyRPCAllFailed) != 0 {
			t.Error("all-failed alert must not fire when a fallback served")
		}
	})

	t.Run("endpoints are tried in declared order", func(t *testing.T) {
		t.Parallel()

		var order sync.Mutex
		var sequence []string
		mk := func(name string, status int) *httptest.Server {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order.Lock()
				sequence = append(sequence, name)
				order.Unlock()
				w.WriteHeader(status)
				_, _ = w.Write([]byte(okResponse))
			}))
			t.Cleanup(srv.Close)
			return srv
		}
		first := mk("first", http.StatusBadGateway)
		second := mk("second", http.StatusBadGateway)
		third := mk("third", http.StatusOK)

		rt := newTestRouter(t, newCountingSender(), first.URL, second.URL, third.URL)
		rt.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"getSlot"}`), nil)

		order.Lock()
		defer order.Unlock()
		want := []string{"first", "second", "third"}
		if len(sequence) != len(want) {
			t.Fatalf("sequence = %v, want %v", sequence, want)
		}
		for i := range want {
			if sequence[i] != want[i] {
				t.Errorf("sequence[%d] = %s, want %s", i, sequence[i], want[i])
			}
		}
	})
}

func TestForwardAllFailed(t *testing.T) {
	t.Parallel()

	primary := upstream(t, http.StatusBadGateway, "", nil)
	fallback := upstream(t, http.StatusServiceUnavailable, "", nil)

	sender := newCountingSender()
	rt := newTestRouter(t, sender, primary.URL, fallback.URL)

	resp := rt.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":42,"method":"getSlot"}`), nil)

	var parsed model.Response
	if err := json.Unmarshal(resp, &parsed); err != nil {
		t.Fatalf("synthesized response is not valid JSON: %v", err)
	}
	if parsed.Error == nil || parsed.Error.Code != model.CodeAllEndpointsFailed {
		t.Errorf("error = %+v, want code %d", parsed.Error, model.CodeAllEndpointsFailed)
	}
	if parsed.Error.Message != model.MsgAllEndpointsFailed {
		t.Errorf("message = %q, want %q", parsed.Error.Message, model.MsgAllEndpointsFailed)
	}
	// The synthesized error never reached an endpoint, so the id-echo
	// guarantee does not apply: the payload carries a null id even when
	// the request had one.
	if string(parsed.ID) != "null" {
		t.Errorf("id = %s, want null", parsed.ID)
	}

	if got := sender.count(model.NotifyRPCAllFailed); got != 1 {
		t.Errorf("all-failed alerts = %d, want exactly 1", got)
	}
	if sender.count(model.NotifyRPCFailover) != 0 {
		t.Error("failover alert is mutually exclusive with all-failed")
	}
}

func TestForwardParseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"whitespace only", "   \n"},
		{"invalid JSON", `{"jsonrpc":`},
		{"bare scalar", `42`},
		{"empty batch", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int64
			srv := upstream(t, http.StatusOK, okResponse, &hits)
			rt := newTestRouter(t, newCountingSender(), srv.URL)

			resp := rt.Forward(context.Background(), []byte(tt.body), nil)

			var parsed model.Response
			if err := json.Unmarshal(resp, &parsed); err != nil {
				t.Fatalf("response is not valid JSON: %v", err)
			}
			if parsed.Error == nil || parsed.Error.Code != model.CodeParseError {
				t.Errorf("error = %+v, want code %d", parsed.Error, model.CodeParseError)
			}
			if string(parsed.ID) != "null" {
				t.Errorf("id = %s, want null", parsed.ID)
			}
			if hits.Load() != 0 {
				t.Error("unparseable bodies must not reach an upstream")
			}
		})
	}
}

func TestForwardUpstreamErrorObject(t *testing.T) {
	t.Parallel()

	// A JSON-RPC error object on HTTP 200 is the upstream's answer and
	// must be forwarded verbatim, not treated as a hop failure.
	errorBody := `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`
	primary := upstream(t, http.StatusOK, errorBody, nil)
	var fallbackHits atomic.Int64
	fallback := upstream(t, http.StatusOK, okResponse, &fallbackHits)

	sender := newCountingSender()
	rt := newTestRouter(t, sender, primary.URL, fallback.URL)

	resp := rt.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"nope"}`), nil)
	if string(resp) != errorBody {
		t.Errorf("response = %s, want upstream error verbatim", resp)
	}
	if fallbackHits.Load() != 0 {
		t.Error("upstream error objects must not trigger failover")
	}
	if sender.count(model.NotifyRPCFailover) != 0 {
		t.Error("no failover alert for an upstream error object")
	}
}

func TestForwardBatch(t *testing.T) {
	t.Parallel()

	batchResponse := `[{"jsonrpc":"2.0","id":1,"result":"a"},{"jsonrpc":"2.0","id":2,"result":"b"}]`
	srv := upstream(t, http.StatusOK, batchResponse, nil)
	rt := newTestRouter(t, newCountingSender(), srv.URL)

	body := `[{"jsonrpc":"2.0","id":1,"method":"getSlot"},{"jsonrpc":"2.0","id":2,"method":"getBalance"}]`
	resp := rt.Forward(context.Background(), []byte(body), nil)
	if string(resp) != batchResponse {
		t.Errorf("batch response = %s, want verbatim forward", resp)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("string id round trips", func(t *testing.T) {
		t.Parallel()
		id, ok := validate([]byte(`{"jsonrpc":"2.0","id":"abc","method":"m"}`))
		if !ok || string(id) != `"abc"` {
			t.Errorf("id = %s, ok = %v", id, ok)
		}
	})

	t.Run("missing id is nil", func(t *testing.T) {
		t.Parallel()
		id, ok := validate([]byte(`{"jsonrpc":"2.0","method":"m"}`))
		if !ok || id != nil {
			t.Errorf("id = %s, ok = %v", id, ok)
		}
	})

	t.Run("batch id is nil", func(t *testing.T) {
		t.Parallel()
		id, ok := validate([]byte(`[{"jsonrpc":"2.0","id":1,"method":"m"}]`))
		if !ok || id != nil {
			t.Errorf("id = %s, ok = %v", id, ok)
		}
	})
}

func TestForwardHeaderSafelist(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = r.Header.Clone()
		mu.Unlock()
		_, _ = w.Write([]byte(okResponse))
	}))
	t.Cleanup(srv.Close)

	rt := newTestRouter(t, newCountingSender(), srv.URL)

	clientHeader := http.Header{}
	clientHeader.Set("Authorization", "Bearer rpc-key")
	clientHeader.Set("X-Api-Key", "abc123")
	clientHeader.Set("Origin", "https://dapp.example")
	clientHeader.Set("Referer", "https://dapp.example/swap")
	clientHeader.Set("Cookie", "session=1")

	rt.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"getSlot"}`), clientHeader)

	mu.Lock()
	if got.Get("Authorization") != "Bearer rpc-key" {
		t.Errorf("Authorization = %q, want carried through", got.Get("Authorization"))
	}
	if got.Get("X-Api-Key") != "abc123" {
		t.Errorf("X-Api-Key = %q, want carried through", got.Get("X-Api-Key"))
	}
	// Identifying headers must never leave the relay.
	for _, name := range []string{"Origin", "Referer", "Cookie"} {
		if v := got.Get(name); v != "" {
			t.Errorf("%s = %q, want stripped", name, v)
		}
	}
	// Release before the subtest forwards again, or the handler's
	// mu.Lock deadlocks against us.
	mu.Unlock()

	t.Run("nil header is fine", func(t *testing.T) {
		resp := rt.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"getSlot"}`), nil)
		if string(resp) != okResponse {
			t.Errorf("resp = %s, want upstream body", resp)
		}
	})
}
