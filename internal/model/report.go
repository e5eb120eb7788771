package model

import "time"

// ThreatReport aggregates the relay's persisted threat state for
// rendering: delivered alert history plus the user-maintained domain
// lists.
type ThreatReport struct {
	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time `json:"generatedAt"`

	// Alerts is the delivered alert history, newest first.
	Alerts []ReportAlert `json:"alerts"`

	// ReportedDomains are domains the user reported as phishing.
	ReportedDomains []string `json:"reportedDomains"`

	// TrustedDomains are domains the user explicitly trusts.
	TrustedDomains []string `json:"trustedDomains"`
}

// ReportAlert is one alert history entry in a threat report.
type ReportAlert struct {
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Priority  Priority         `json:"-"`
	Severity  string           `json:"priority"`
	CreatedAt time.Time        `json:"createdAt"`
}

// CountByType tallies alerts per notification type.
func (r *ThreatReport) CountByType() map[NotificationType]int {
	counts := make(map[NotificationType]int)
	for _, a := range r.Alerts {
		counts[a.Type]++
	}
	return counts
}

// UrgentCount returns how many alerts carried urgent priority.
func (r *ThreatReport) UrgentCount() int {
	var n int
	for _, a := range r.Alerts {
		if a.Priority == PriorityUrgent {
			n++
		}
	}
	return n
}

// HasFindings reports whether anything noteworthy happened: any alert
// fired or any domain was reported.
func (r *ThreatReport) HasFindings() bool {
	return len(r.Alerts) > 0 || len(r.ReportedDomains) > 0
}
