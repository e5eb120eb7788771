package model

// Confidence represents how certain the reputation engine is that a domain
// is (or is not) phishing.
//
// Design decision: We use iota-based constants rather than string constants
// for efficiency in comparisons and sorting. The String() method provides
// human-readable output when needed.
type Confidence int

const (
	// ConfidenceUnknown indicates the domain matched no list and no heuristic.
	ConfidenceUnknown Confidence = iota

	// ConfidenceLow indicates a weak signal that did not cross any
	// detection threshold on its own.
	ConfidenceLow

	// ConfidenceMedium indicates a moderate signal, such as a typosquat
	// at the outer edge of the edit-distance window.
	ConfidenceMedium

	// ConfidenceHigh indicates a strong signal: a homograph of a known
	// domain, a close typosquat, or a phishing pattern match.
	ConfidenceHigh

	// ConfidenceConfirmed indicates an exact match against the deny list
	// (confirmed phishing) or the allow list (confirmed safe).
	ConfidenceConfirmed
)

// String returns a human-readable representation of the confidence level.
func (c Confidence) String() string {
	switch c {
	case ConfidenceConfirmed:
		return "CONFIRMED"
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceLow:
		return "LOW"
	case ConfidenceUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// DomainVerdict is the result of a reputation check on a single domain.
// It is a pure function of (domain, static lists): checking the same domain
// twice with no list changes in between yields identical verdicts.
type DomainVerdict struct {
	// Domain is the normalized domain that was checked.
	Domain string `json:"domain"`

	// IsPhishing reports whether the domain was classified as phishing.
	IsPhishing bool `json:"isPhishing"`

	// Confidence is the certainty of the classification.
	Confidence Confidence `json:"-"`

	// ConfidenceText is the string form of Confidence for serialization.
	ConfidenceText string `json:"confidence"`

	// Reason explains which pass produced the verdict.
	Reason string `json:"reason"`

	// LegitimateMatch is the allow-list entry the domain appears to
	// impersonate, when one could be determined. Empty otherwise.
	LegitimateMatch string `json:"legitimateMatch,omitempty"`

	// Alerts carries human-readable warnings attached to the verdict,
	// e.g. the specific homograph characters that were substituted.
	Alerts []string `json:"alerts,omitempty"`
}
