package bus

import "time"

// Topics carried on the bus. The forwarding path publishes observations
// and requests verdicts; user actions arrive from the control surface.
const (
	// TopicObservation carries one observed RPC call per message.
	TopicObservation = "rpc.observation"

	// TopicVerdictCheck requests a domain reputation verdict. The reply
	// payload is a model.DomainVerdict value.
	TopicVerdictCheck = "domain.verdict"

	// TopicTrustDomain pins a domain as user-trusted.
	TopicTrustDomain = "domain.trust"

	// TopicReportDomain reports a domain as phishing.
	TopicReportDomain = "domain.report"
)

// Observation is the payload for TopicObservation: a single JSON-RPC
// call attributed to a client session.
type Observation struct {
	// SessionKey identifies the client session the call belongs to.
	SessionKey string

	// Method is the JSON-RPC method name.
	Method string

	// Origin is the Origin header of the client request, if any.
	Origin string

	// At is when the proxy received the call.
	At time.Time
}

// DomainAction is the payload for TopicTrustDomain and
// TopicReportDomain, and the request payload for TopicVerdictCheck.
type DomainAction struct {
	// Domain is the raw domain or URL the action applies to.
	Domain string
}
