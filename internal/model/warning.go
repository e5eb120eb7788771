package model

import "time"

// Severity represents the risk level of a drainer warning.
//
// Design decision: We use iota-based constants rather than string constants
// for efficiency in comparisons and sorting. The String() method provides
// human-readable output when needed.
type Severity int

const (
	// SeverityInfo indicates informational observations with no direct risk.
	SeverityInfo Severity = iota

	// SeverityLow indicates minor anomalies, e.g. a single early balance check.
	SeverityLow

	// SeverityMedium indicates patterns that warrant attention, e.g. rapid
	// asset enumeration bursts.
	SeverityMedium

	// SeverityHigh indicates serious patterns, e.g. a transaction signature
	// request within seconds of the first contact.
	SeverityHigh

	// SeverityCritical indicates the full drainer shape was observed:
	// enumeration, transaction preparation, and execution in one session.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Warning is a single drainer-sequence finding for a session.
type Warning struct {
	// Name identifies the rule that fired, e.g. "Immediate Balance Check".
	Name string `json:"name"`

	// Severity is the risk level of the finding.
	Severity Severity `json:"-"`

	// SeverityText is the string form of Severity for serialization.
	SeverityText string `json:"severity"`

	// Message is a human-readable description of what was observed.
	Message string `json:"message"`

	// Method is the RPC method that triggered the rule.
	Method string `json:"method"`

	// SessionKey identifies the session the warning belongs to.
	SessionKey string `json:"sessionKey"`

	// Timestamp is when the triggering call was observed.
	Timestamp time.Time `json:"timestamp"`
}
