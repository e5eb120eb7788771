package model

import "time"

// NotificationType identifies the class of event a notification reports.
// Each type statically declares its supported channels and base priority
// via notificationInfoMapping.
type NotificationType string

// Notification types raised by the relay.
const (
	// NotifyPhishingDetected reports a phishing or lookalike domain verdict.
	NotifyPhishingDetected NotificationType = "PHISHING_DETECTED"

	// NotifyDrainerDetected reports the full drainer sequence in a session.
	NotifyDrainerDetected NotificationType = "DRAINER_DETECTED"

	// NotifySuspiciousRPC reports an individual suspicious RPC pattern.
	NotifySuspiciousRPC NotificationType = "SUSPICIOUS_RPC"

	// NotifyRPCBlocked reports a call that was blocked by policy.
	NotifyRPCBlocked NotificationType = "RPC_BLOCKED"

	// NotifyProxyError reports an internal proxy error.
	NotifyProxyError NotificationType = "PROXY_ERROR"

	// NotifyRPCFailover reports that the primary endpoint failed and a
	// fallback was attempted. Fired at most once per forward attempt.
	NotifyRPCFailover NotificationType = "RPC_FAILOVER"

	// NotifyRPCAllFailed reports that every endpoint failed for a forward
	// attempt. Mutually exclusive with NotifyRPCFailover per call.
	NotifyRPCAllFailed NotificationType = "RPC_ALL_FAILED"

	// NotifyTransportStatus reports privacy-transport state changes
	// (bootstrap progress, circuit rotation, disconnects).
	NotifyTransportStatus NotificationType = "TRANSPORT_STATUS"
)

// Priority orders notifications for display purposes.
type Priority int

const (
	// PriorityLow is for informational events.
	PriorityLow Priority = iota
	// PriorityNormal is for routine operational events.
	PriorityNormal
	// PriorityHigh is for events the user should see promptly.
	PriorityHigh
	// PriorityUrgent is for active-threat events.
	PriorityUrgent
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "URGENT"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	default:
		return "LOW"
	}
}

// NotificationInfo contains static metadata about a notification type:
// which channels it may use and its base priority.
type NotificationInfo struct {
	// Native reports whether the type may use the native (OS) channel.
	Native bool

	// Overlay reports whether the type may use the in-context overlay channel.
	Overlay bool

	// Priority is the base priority assigned when the producer does not
	// set one explicitly.
	Priority Priority
}

// notificationInfoMapping maps notification types to their metadata.
//
// Design decision: We use a map rather than embedding channel support in
// each call site because:
// 1. It provides a single source of truth for channel policy
// 2. It allows adjusting policy without touching producers
// 3. It makes the full notification surface easy to audit
var notificationInfoMapping = map[NotificationType]NotificationInfo{
	NotifyPhishingDetected: {Native: true, Overlay: true, Priority: PriorityUrgent},
	NotifyDrainerDetected:  {Native: true, Overlay: true, Priority: PriorityUrgent},
	NotifySuspiciousRPC:    {Native: false, Overlay: true, Priority: PriorityHigh},
	NotifyRPCBlocked:       {Native: true, Overlay: true, Priority: PriorityHigh},
	NotifyProxyError:       {Native: true, Overlay: false, Priority: PriorityNormal},
	NotifyRPCFailover:      {Native: false, Overlay: true, Priority: PriorityNormal},
	NotifyRPCAllFailed:     {Native: true, Overlay: true, Priority: PriorityHigh},
	NotifyTransportStatus:  {Native: false, Overlay: true, Priority: PriorityLow},
}

// Info returns the static metadata for the notification type.
// Unknown types get overlay-only delivery at low priority so that a new
// producer cannot silently gain the native channel.
func (t NotificationType) Info() NotificationInfo {
	if info, ok := notificationInfoMapping[t]; ok {
		return info
	}
	return NotificationInfo{Native: false, Overlay: true, Priority: PriorityLow}
}

// Notification is a single event to be delivered through the alert hub.
type Notification struct {
	// Type is the notification class; it determines channels and throttling.
	Type NotificationType `json:"type"`

	// Title is the short headline shown to the user.
	Title string `json:"title"`

	// Message is the detailed body text.
	Message string `json:"message"`

	// Priority overrides the type's base priority when non-zero need
	// arises; producers normally leave it at the type default.
	Priority Priority `json:"priority"`

	// Timestamp is when the event occurred. The hub fills it in when zero.
	Timestamp time.Time `json:"timestamp"`
}

// Delivery is the result of a Notify call: whether it was throttled and
// which channels accepted it. Delivery is best-effort; a false channel
// flag is not an error.
type Delivery struct {
	Throttled   bool `json:"throttled"`
	NativeSent  bool `json:"nativeSent"`
	OverlaySent bool `json:"overlaySent"`
}
