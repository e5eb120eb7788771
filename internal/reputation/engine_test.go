package reputation

import (
	"reflect"
	"testing"

	"github.com/veilrpc/veilrpc/internal/model"
)

// TestNormalize tests domain normalization.
func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Phantom.App", "phantom.app"},
		{"https://www.phantom.app/download", "phantom.app"},
		{"http://solana.com:443/path?q=1", "solana.com"},
		{"  jup.ag  ", "jup.ag"},
		{"raydium.io#claim", "raydium.io"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestCheckListMatches tests exact allow/deny classification.
func TestCheckListMatches(t *testing.T) {
	t.Parallel()

	t.Run("every allow-list entry is confirmed safe", func(t *testing.T) {
		t.Parallel()

		e := NewEngine()
		for _, domain := range e.AllowList() {
			v := e.Check(domain)
			if v.IsPhishing {
				t.Errorf("allow-listed %q classified as phishing", domain)
			}
			if v.Confidence != model.ConfidenceConfirmed {
				t.Errorf("allow-listed %q confidence = %v, want CONFIRMED", domain, v.Confidence)
			}
		}
	})

	t.Run("deny-listed domain is confirmed phishing", func(t *testing.T) {
		t.Parallel()

		e := NewEngine()
		e.SeedDeny([]string{"evil-drainer.xyz"})
		v := e.Check("evil-drainer.xyz")
		if !v.IsPhishing || v.Confidence != model.ConfidenceConfirmed {
			t.Errorf("unexpected verdict: %+v", v)
		}
	})

	t.Run("check is idempotent", func(t *testing.T) {
		t.Parallel()

		e := NewEngine()
		first := e.Check("phantom.app")
		second := e.Check("phantom.app")
		if !reflect.DeepEqual(first, second) {
			t.Errorf("verdicts differ: %+v vs %+v", first, second)
		}
	})
}

// TestCheckHomoglyph tests confusable-character detection.
func TestCheckHomoglyph(t *testing.T) {
	t.Parallel()

	t.Run("cyrillic о in phantom", func(t *testing.T) {
		t.Parallel()

		e := NewEngine()
		v := e.Check("phantоm.app") // Cyrillic о
		if !v.IsPhishing {
			t.Fatal("homograph not detected")
		}
		if v.Confidence != model.ConfidenceHigh {
			t.Errorf("confidence = %v, want HIGH", v.Confidence)
		}
		if v.LegitimateMatch != "phantom.app" {
			t.Errorf("legitimateMatch = %q, want phantom.app", v.LegitimateMatch)
		}
		if len(v.Alerts) == 0 {
			t.Error("expected the confusable character to be reported")
		}
	})

	t.Run("digit substitution", func(t *testing.T) {
		t.Parallel()

		e := NewEngine()
		v := e.Check("so1flare.com") // 1 for l
		if !v.IsPhishing || v.Confidence != model.ConfidenceHigh {
			t.Errorf("unexpected verdict: %+v", v)
		}
		if v.LegitimateMatch != "solflare.com" {
			t.Errorf("legitimateMatch = %q, want solflare.com", v.LegitimateMatch)
		}
	})
}

// TestCheckTyposquat tests the edit-distance boundaries.
func TestCheckTyposquat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		domain     string
		phishing   bool
		confidence model.Confidence
	}{
		// phantom.app with one deleted char: distance 1.
		{"distance 1", "phantm.app", true, model.ConfidenceHigh},
		// two edits from solflare.com.
		{"distance 2", "solfare.co", true, model.ConfidenceHigh},
		// three edits from phantom.app, length > 6.
		{"distance 3 long domain", "phamton.apq", true, model.ConfidenceMedium},
		// far from everything, no pattern signal.
		{"distance >= 4", "unrelated-example.net", false, model.ConfidenceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewEngine()
			v := e.Check(tt.domain)
			if v.IsPhishing != tt.phishing {
				t.Errorf("Check(%q).IsPhishing = %v, want %v (%+v)", tt.domain, v.IsPhishing, tt.phishing, v)
			}
			if v.Confidence != tt.confidence {
				t.Errorf("Check(%q).Confidence = %v, want %v", tt.domain, v.Confidence, tt.confidence)
			}
		})
	}
}

// TestCheckPatterns tests the phishing wording rules.
func TestCheckPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		domain string
	}{
		{"brand with separator", "phantom-wallet-login.com"},
		{"airdrop lure", "solana-airdrop-claim.net"},
		{"seed phrase request", "seed-phrase-validation.org"},
		{"wallet recovery", "wallet-restore-support.io"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewEngine()
			v := e.Check(tt.domain)
			if !v.IsPhishing {
				t.Errorf("Check(%q) not flagged: %+v", tt.domain, v)
			}
			if v.Confidence != model.ConfidenceHigh {
				t.Errorf("Check(%q).Confidence = %v, want HIGH", tt.domain, v.Confidence)
			}
		})
	}
}

// recordingStore captures persisted mutations for assertions.
type recordingStore struct {
	reported []string
	trusted  []string
}

func (s *recordingStore) AddReported(domain string) error {
	s.reported = append(s.reported, domain)
	return nil
}

func (s *recordingStore) AddTrusted(domain string) error {
	s.trusted = append(s.trusted, domain)
	return nil
}

// TestReportAndPin tests the explicit mutation operations.
func TestReportAndPin(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	e := NewEngine(WithStore(store))

	if err := e.Report("Freshly-Evil.xyz"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := e.Check("freshly-evil.xyz"); !v.IsPhishing || v.Confidence != model.ConfidenceConfirmed {
		t.Errorf("reported domain not denied: %+v", v)
	}
	if len(store.reported) != 1 || store.reported[0] != "freshly-evil.xyz" {
		t.Errorf("report not persisted normalized: %v", store.reported)
	}

	if err := e.Pin("mynewdapp.io"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := e.Check("mynewdapp.io"); v.IsPhishing || v.Confidence != model.ConfidenceConfirmed {
		t.Errorf("pinned domain not allowed: %+v", v)
	}

	// Pin must override a prior report.
	if err := e.Pin("freshly-evil.xyz"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := e.Check("freshly-evil.xyz"); v.IsPhishing {
		t.Errorf("pin did not clear deny entry: %+v", v)
	}
}

// TestLevenshtein tests the distance primitive.
func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"phantom", "phantom", 0},
		{"phantom", "phanton", 1},
		{"phantom", "fantom", 1},
		{"kitten", "sitting", 3},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			t.Parallel()
			if got := levenshtein(tt.a, tt.b); got != tt.want {
				t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
