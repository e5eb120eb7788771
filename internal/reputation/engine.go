package reputation

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/veilrpc/veilrpc/internal/model"
)

// Typosquat detection thresholds.
//
// Distances 1-2 from an allow-listed domain are high-confidence
// typosquats. Exactly typosquatMediumDistance is only suspicious for
// domains longer than six characters: short domains hit distance 3 from
// each other constantly, so the extra length gate keeps the false-positive
// rate down. The gate is a deliberate, tested rule rather than an
// implementation accident.
const (
	typosquatHighMaxDistance   = 2
	typosquatMediumDistance    = 3
	typosquatMediumMinLength   = 7
	legitimateMatchMaxDistance = 5
)

// defaultAllowList seeds the engine with well-known wallet and dApp
// domains. User "trust this site" decisions extend it at runtime.
var defaultAllowList = []string{
	"phantom.app",
	"solflare.com",
	"backpack.app",
	"glow.app",
	"solana.com",
	"solanalabs.com",
	"explorer.solana.com",
	"solscan.io",
	"solanabeach.io",
	"jup.ag",
	"jupiter.exchange",
	"raydium.io",
	"orca.so",
	"magiceden.io",
	"tensor.trade",
	"marinade.finance",
	"birdeye.so",
}

// Phishing wording patterns. These fire without a specific legitimate
// match: the wording itself is the signal.
var (
	// brandAdjacentPattern matches a brand token glued to a non-letter
	// character, the shape of "phantom-wallet-app.com" or "jupiter2.io".
	brandAdjacentPattern = regexp.MustCompile(
		`(?:phantom|solflare|backpack|jupiter|raydium|magiceden|solana)[^a-z]|[^a-z](?:phantom|solflare|backpack|jupiter|raydium|magiceden)`)

	// giveawayPattern and ecosystemPattern together detect airdrop-bait
	// co-occurrence: a lure word plus an ecosystem word.
	giveawayPattern  = regexp.MustCompile(`airdrop|claim|free`)
	ecosystemPattern = regexp.MustCompile(`solana|sol[^a-z]|sol$|jupiter`)

	// recoveryPattern matches seed-phrase and wallet-recovery request
	// language, which no legitimate domain embeds.
	recoveryPattern = regexp.MustCompile(
		`seed[-_]?phrase|recovery[-_]?phrase|secret[-_]?phrase|mnemonic|wallet[-_]?(?:validat|verif|restor|recover|sync)|import[-_]?wallet`)
)

// Store persists user-driven list mutations across runs. The engine works
// without one; Report and Pin then mutate memory only.
type Store interface {
	// AddReported records a user-reported phishing domain.
	AddReported(domain string) error

	// AddTrusted records a user-trusted domain.
	AddTrusted(domain string) error
}

// Engine evaluates domains against local allow/deny lists and string
// heuristics. Check is read-only and safe for concurrent use; Report and
// Pin take the write lock.
type Engine struct {
	mu     sync.RWMutex
	allow  map[string]bool
	deny   map[string]bool
	store  Store
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore attaches a persistence store for Report/Pin mutations.
func WithStore(store Store) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine seeded with the default allow list.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		allow:  make(map[string]bool),
		deny:   make(map[string]bool),
		logger: slog.Default(),
	}
	for _, domain := range defaultAllowList {
		e.allow[domain] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SeedAllow adds domains to the allow list without persisting them.
// Used to load config-file trust decisions and stored state at startup.
func (e *Engine) SeedAllow(domains []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range domains {
		e.allow[Normalize(d)] = true
	}
}

// SeedDeny adds domains to the deny list without persisting them.
func (e *Engine) SeedDeny(domains []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range domains {
		e.deny[Normalize(d)] = true
	}
}

// Normalize lowercases a domain and strips scheme, www prefix, path,
// query, and port.
func Normalize(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if idx := strings.Index(d, "://"); idx != -1 {
		d = d[idx+3:]
	}
	if idx := strings.IndexAny(d, "/?#"); idx != -1 {
		d = d[:idx]
	}
	if idx := strings.LastIndex(d, ":"); idx != -1 && !strings.Contains(d[idx:], "]") {
		d = d[:idx]
	}
	d = strings.TrimPrefix(d, "www.")
	return d
}

// Check classifies a domain. It is a pure function of the domain and the
// current lists: no network, no mutation, identical verdicts for
// identical inputs.
func (e *Engine) Check(domain string) model.DomainVerdict {
	d := Normalize(domain)

	e.mu.RLock()
	defer e.mu.RUnlock()

	// Pass 1: exact deny-list match.
	if e.deny[d] {
		return verdict(d, true, model.ConfidenceConfirmed, "domain is on the local deny list", "")
	}

	// Pass 2: exact allow-list match.
	if e.allow[d] {
		return verdict(d, false, model.ConfidenceConfirmed, "domain is on the local allow list", "")
	}

	// Pass 3: homoglyph detection. Map confusable characters to ASCII;
	// a changed string that lands on (or within one edit of) an allow
	// entry is an impersonation attempt.
	if mapped, subs := mapConfusables(d); mapped != d {
		if match := e.nearestAllowed(mapped, 1); match != "" {
			v := verdict(d, true, model.ConfidenceHigh,
				fmt.Sprintf("homograph of %s using lookalike characters", match), match)
			for _, r := range subs {
				v.Alerts = append(v.Alerts, fmt.Sprintf("confusable character %q (U+%04X)", r, r))
			}
			return v
		}
	}

	// Pass 4: typosquat detection by edit distance against every allow
	// entry.
	minDist, closest := e.minDistance(d)
	switch {
	case minDist >= 1 && minDist <= typosquatHighMaxDistance:
		return verdict(d, true, model.ConfidenceHigh,
			fmt.Sprintf("typosquat of %s (edit distance %d)", closest, minDist), closest)
	case minDist == typosquatMediumDistance && len(d) >= typosquatMediumMinLength:
		return verdict(d, true, model.ConfidenceMedium,
			fmt.Sprintf("possible typosquat of %s (edit distance %d)", closest, minDist), closest)
	}

	// Pass 5: phishing wording patterns. No legitimate match required.
	if reason, ok := matchPhishingPatterns(d); ok {
		v := verdict(d, true, model.ConfidenceHigh, reason, "")
		if minDist <= legitimateMatchMaxDistance {
			v.LegitimateMatch = closest
		}
		return v
	}

	// No signal. Attach the nearest allow entry when it is close enough
	// to be informative.
	v := verdict(d, false, model.ConfidenceUnknown, "no local signal for this domain", "")
	if minDist <= legitimateMatchMaxDistance {
		v.LegitimateMatch = closest
	}
	return v
}

// Report adds a domain to the deny list: the user (or a collaborator
// layer) flagged it as phishing. Persisted when a store is attached.
func (e *Engine) Report(domain string) error {
	d := Normalize(domain)
	e.mu.Lock()
	e.deny[d] = true
	e.mu.Unlock()

	e.logger.Warn("domain reported as phishing", slog.String("domain", d))
	if e.store != nil {
		return e.store.AddReported(d)
	}
	return nil
}

// Pin adds a domain to the allow list: an explicit trust decision.
// Persisted when a store is attached.
func (e *Engine) Pin(domain string) error {
	d := Normalize(domain)
	e.mu.Lock()
	e.allow[d] = true
	delete(e.deny, d)
	e.mu.Unlock()

	if e.store != nil {
		return e.store.AddTrusted(d)
	}
	return nil
}

// AllowList returns the current allow entries, sorted for stable output.
func (e *Engine) AllowList() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.allow))
	for d := range e.allow {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// nearestAllowed returns an allow entry equal to d or within maxDist
// edits of it, preferring the exact match. Caller holds at least RLock.
func (e *Engine) nearestAllowed(d string, maxDist int) string {
	if e.allow[d] {
		return d
	}
	for entry := range e.allow {
		if levenshtein(d, entry) <= maxDist {
			return entry
		}
	}
	return ""
}

// minDistance returns the smallest edit distance from d to any allow
// entry and the entry achieving it. Caller holds at least RLock.
func (e *Engine) minDistance(d string) (int, string) {
	best := -1
	var closest string
	for entry := range e.allow {
		dist := levenshtein(d, entry)
		if best == -1 || dist < best {
			best = dist
			closest = entry
		}
	}
	if best == -1 {
		return int(^uint(0) >> 1), "" // empty allow list
	}
	return best, closest
}

// matchPhishingPatterns evaluates the wording rules against a normalized
// domain.
func matchPhishingPatterns(d string) (string, bool) {
	if recoveryPattern.MatchString(d) {
		return "domain requests seed phrase or wallet recovery", true
	}
	if giveawayPattern.MatchString(d) && ecosystemPattern.MatchString(d) {
		return "airdrop/giveaway lure combined with ecosystem branding", true
	}
	if brandAdjacentPattern.MatchString(d) {
		return "brand name embedded with separator characters", true
	}
	return "", false
}

// verdict assembles a DomainVerdict with the confidence text filled in.
func verdict(domain string, phishing bool, confidence model.Confidence, reason, match string) model.DomainVerdict {
	return model.DomainVerdict{
		Domain:          domain,
		IsPhishing:      phishing,
		Confidence:      confidence,
		ConfidenceText:  confidence.String(),
		Reason:          reason,
		LegitimateMatch: match,
	}
}
