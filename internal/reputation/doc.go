// Package reputation classifies domains as phishing or safe using only
// local state: an allow list, a deny list, a homoglyph confusable table,
// edit-distance typosquat detection, and phishing wording patterns.
//
// Check is deterministic and performs no network I/O; mutation is limited
// to the explicitly separate Report and Pin operations.
package reputation
