package model

import (
	"encoding/json"
	"testing"
)

// TestNewErrorResponse tests synthesized error envelope construction.
func TestNewErrorResponse(t *testing.T) {
	t.Parallel()

	t.Run("echoes request id unchanged", func(t *testing.T) {
		t.Parallel()

		resp := NewErrorResponse(json.RawMessage(`"abc-123"`), CodeAllEndpointsFailed, MsgAllEndpointsFailed)
		if string(resp.ID) != `"abc-123"` {
			t.Errorf("expected id to round-trip, got %s", resp.ID)
		}
		if resp.Error == nil || resp.Error.Code != CodeAllEndpointsFailed {
			t.Errorf("expected error code %d, got %+v", CodeAllEndpointsFailed, resp.Error)
		}
		if resp.Result != nil {
			t.Error("error and result must be mutually exclusive")
		}
	})

	t.Run("missing id becomes null", func(t *testing.T) {
		t.Parallel()

		resp := NewErrorResponse(nil, CodeParseError, "parse error")
		data, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]json.RawMessage
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(decoded["id"]) != "null" {
			t.Errorf("expected null id, got %s", decoded["id"])
		}
	})

	t.Run("all endpoints failed has canonical shape", func(t *testing.T) {
		t.Parallel()

		resp := NewAllEndpointsFailedResponse()
		if resp.JSONRPC != JSONRPCVersion {
			t.Errorf("expected jsonrpc %q, got %q", JSONRPCVersion, resp.JSONRPC)
		}
		if string(resp.ID) != "null" {
			t.Errorf("expected null id, got %s", resp.ID)
		}
		if resp.Error.Code != -32000 {
			t.Errorf("expected code -32000, got %d", resp.Error.Code)
		}
		if resp.Error.Message != "All RPC endpoints failed" {
			t.Errorf("unexpected message: %q", resp.Error.Message)
		}
	})
}

// TestIsBatch tests batch detection over raw bodies.
func TestIsBatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"single object", `{"jsonrpc":"2.0","id":1,"method":"getBalance"}`, false},
		{"batch array", `[{"jsonrpc":"2.0","id":1,"method":"getBalance"}]`, true},
		{"leading whitespace", "\n\t [{}]", true},
		{"empty body", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsBatch([]byte(tt.body)); got != tt.want {
				t.Errorf("IsBatch(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}
