package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// runNewNym executes the newnym command against the given relay address.
func runNewNym(t *testing.T, address string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewNewNymCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SilenceUsage = true
	cmd.SetArgs([]string{"--address", address})
	err := cmd.Execute()
	return buf.String(), err
}

// TestRunNewNymCmd tests circuit rotation against a stubbed relay.
func TestRunNewNymCmd(t *testing.T) {
	t.Parallel()

	t.Run("rotation succeeds and reports exit address", func(t *testing.T) {
		t.Parallel()
		relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/newnym":
				if r.Method != http.MethodPost {
					http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
					return
				}
				w.Write([]byte(`{"status":"ok","rotated":true}`)) //nolint:errcheck // Test stub
			case "/status":
				w.Write([]byte(`{"running":true,"mode":"tor","torIp":"185.220.101.1"}`)) //nolint:errcheck // Test stub
			default:
				http.NotFound(w, r)
			}
		}))
		t.Cleanup(relay.Close)

		output, err := runNewNym(t, strings.TrimPrefix(relay.URL, "http://"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "Circuit rotated") {
			t.Errorf("expected rotation confirmation, got %q", output)
		}
		if !strings.Contains(output, "185.220.101.1") {
			t.Errorf("expected exit address in output, got %q", output)
		}
	})

	t.Run("non-tor relay reports conflict", func(t *testing.T) {
		t.Parallel()
		relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "circuit rotation requires a tor route", http.StatusConflict)
		}))
		t.Cleanup(relay.Close)

		_, err := runNewNym(t, strings.TrimPrefix(relay.URL, "http://"))
		if err == nil {
			t.Fatal("expected error for non-tor relay")
		}
		if !strings.Contains(err.Error(), "tor route") {
			t.Errorf("expected tor-route error, got %v", err)
		}
	})

	t.Run("unreachable relay errors", func(t *testing.T) {
		t.Parallel()
		_, err := runNewNym(t, "127.0.0.1:1")
		if err == nil {
			t.Fatal("expected error for unreachable relay")
		}
	})
}
