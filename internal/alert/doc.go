// Package alert delivers user-facing notifications through pluggable
// channels with rate limiting. A single Hub fans each notification out
// to a native (operating system) channel and an in-context overlay
// channel, subject to a shared per-minute budget and per-type cooldowns
// so that a noisy detector cannot flood the user.
package alert
