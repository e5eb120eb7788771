package drainer

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/veilrpc/veilrpc/internal/model"
)

// Rule timing windows. Thresholds are relative either to the session's
// first observed call (a dApp that scans assets within seconds of being
// opened is not a human browsing) or to a rolling window ending at the
// current call.
const (
	immediateBalanceWindow = 2 * time.Second
	immediateTokenWindow   = 3 * time.Second
	burstWindow            = 5 * time.Second
	burstThreshold         = 5
	quickTransactionWindow = 10 * time.Second
	simulateFloodWindow    = 10 * time.Second
	simulateFloodThreshold = 3
	tokenCheckAccountInfos = 3
	drainerEnumThreshold   = 3
)

// Warning names. The names are stable identifiers used by the alert hub
// and the report layer.
const (
	WarnImmediateBalance = "Immediate Balance Check"
	WarnImmediateToken   = "Immediate Token Scan"
	WarnAssetScan        = "Asset Scan"
	WarnTokenCheck       = "Token Check"
	WarnQuickTransaction = "Quick Transaction"
	WarnDrainerDetected  = "DRAINER DETECTED"
	WarnSimulateFlood    = "Multi-Token Drain Attempt"
)

// Analyzer classifies per-session RPC call sequences.
//
// The session registry is guarded by an RWMutex while each session holds
// its own lock, so observations for different keys proceed independently
// and observations for one key are serialized.
type Analyzer struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithLogger sets the analyzer's logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer creates an empty Analyzer.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		sessions: make(map[string]*session),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Observe records one RPC call for a session and returns the warnings the
// call triggers, possibly none. Every qualifying call re-evaluates all
// rules; a rule whose condition still holds fires again. Malformed input
// fails open: it is recorded for bookkeeping and triggers nothing.
func (a *Analyzer) Observe(sessionKey, method string, at time.Time) []model.Warning {
	if sessionKey == "" || method == "" {
		return nil
	}

	s := a.getOrCreate(sessionKey, at)

	s.mu.Lock()
	defer s.mu.Unlock()

	class := classify(method)
	c := call{method: method, at: at}
	switch class {
	case classEnumeration:
		s.enumeration = append(s.enumeration, c)
	case classTxPrep:
		s.txPrep = append(s.txPrep, c)
	case classTxExec:
		s.txExec = append(s.txExec, c)
	default:
		s.otherCalls++
		return nil
	}

	warnings := a.evaluate(s, sessionKey, method, at, class)
	for i := range warnings {
		s.emitted[warnings[i].Name]++
	}
	return warnings
}

// evaluate runs every rule against the session state. Caller holds the
// session lock.
func (a *Analyzer) evaluate(s *session, key, method string, at time.Time, class callClass) []model.Warning {
	var warnings []model.Warning
	sinceFirst := at.Sub(s.firstCallTime)

	add := func(name string, severity model.Severity, message string) {
		warnings = append(warnings, model.Warning{
			Name:         name,
			Severity:     severity,
			SeverityText: severity.String(),
			Message:      message,
			Method:       method,
			SessionKey:   key,
			Timestamp:    at,
		})
	}

	// Balance lookup within two seconds of first contact.
	if class == classEnumeration && sinceFirst < immediateBalanceWindow && strings.HasPrefix(method, "getBalance") {
		add(WarnImmediateBalance, model.SeverityLow,
			"balance was queried almost immediately after the session started")
	}

	// Token account scan within three seconds of first contact.
	if strings.HasPrefix(method, "getTokenAccountsByOwner") && sinceFirst < immediateTokenWindow {
		add(WarnImmediateToken, model.SeverityMedium,
			"token accounts were enumerated almost immediately after the session started")
	}

	// Enumeration burst: five or more enumeration calls in five seconds.
	if countSince(s.enumeration, at.Add(-burstWindow)) >= burstThreshold {
		add(WarnAssetScan, model.SeverityMedium,
			"rapid burst of asset enumeration calls")
	}

	// Token check: owner scan plus repeated account inspection, cumulative.
	if countMethod(s.enumeration, "getTokenAccountsByOwner") >= 1 &&
		countMethod(s.enumeration, "getAccountInfo") >= tokenCheckAccountInfos {
		add(WarnTokenCheck, model.SeverityMedium,
			"token accounts enumerated and individual accounts inspected repeatedly")
	}

	// Transaction execution within ten seconds of first contact.
	if class == classTxExec && sinceFirst < quickTransactionWindow {
		add(WarnQuickTransaction, model.SeverityHigh,
			"transaction signature or send requested within seconds of first contact")
	}

	// The full drainer shape: enumerate, prepare, execute.
	if len(s.enumeration) >= drainerEnumThreshold && len(s.txPrep) >= 1 && len(s.txExec) >= 1 {
		add(WarnDrainerDetected, model.SeverityCritical,
			"session enumerated assets, prepared a transaction, and requested execution")
	}

	// Simulation flood: repeated simulateTransaction in ten seconds,
	// the shape of per-token drain probing.
	if countSince(filterMethod(s.txExec, "simulateTransaction"), at.Add(-simulateFloodWindow)) >= simulateFloodThreshold {
		add(WarnSimulateFlood, model.SeverityHigh,
			"repeated transaction simulations suggest per-token drain probing")
	}

	if len(warnings) > 0 {
		a.logger.Warn("drainer rules fired",
			slog.String("session_key", key),
			slog.String("method", method),
			slog.Int("count", len(warnings)))
	}
	return warnings
}

// Reset drops all state for a session key. Called on navigation or
// reconnect.
func (a *Analyzer) Reset(sessionKey string) {
	a.mu.Lock()
	delete(a.sessions, sessionKey)
	a.mu.Unlock()
}

// PruneIdle removes sessions whose last activity is older than maxIdle.
// Sessions are unbounded by default; this is invoked only from explicit
// teardown paths, never automatically.
func (a *Analyzer) PruneIdle(now time.Time, maxIdle time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	pruned := 0
	for key, s := range a.sessions {
		s.mu.Lock()
		last := s.firstCallTime
		for _, list := range [][]call{s.enumeration, s.txPrep, s.txExec} {
			if n := len(list); n > 0 && list[n-1].at.After(last) {
				last = list[n-1].at
			}
		}
		s.mu.Unlock()
		if now.Sub(last) > maxIdle {
			delete(a.sessions, key)
			pruned++
		}
	}
	return pruned
}

// SessionCount returns the number of live sessions.
func (a *Analyzer) SessionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

// EmittedWarnings returns the unique warning names recorded for a session
// with their fire counts. Empty when the session does not exist.
func (a *Analyzer) EmittedWarnings(sessionKey string) map[string]int {
	a.mu.RLock()
	s := a.sessions[sessionKey]
	a.mu.RUnlock()
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.emitted))
	for name, count := range s.emitted {
		out[name] = count
	}
	return out
}

// getOrCreate returns the session for key, creating it with firstCallTime
// set to the current observation when absent.
func (a *Analyzer) getOrCreate(key string, at time.Time) *session {
	a.mu.RLock()
	s := a.sessions[key]
	a.mu.RUnlock()
	if s != nil {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s = a.sessions[key]; s == nil {
		s = newSession(at)
		a.sessions[key] = s
	}
	return s
}

// filterMethod returns the calls in list whose method matches.
func filterMethod(list []call, method string) []call {
	var out []call
	for _, c := range list {
		if strings.HasPrefix(c.method, method) {
			out = append(out, c)
		}
	}
	return out
}
