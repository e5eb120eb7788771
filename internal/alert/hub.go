package alert

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/veilrpc/veilrpc/internal/model"
)

// Rate-limit defaults. The shared window caps total user-visible
// notifications regardless of type; cooldowns additionally space out the
// chattiest categories.
const (
	defaultMaxPerMinute     = 5
	rateWindow              = time.Minute
	defaultActivityCooldown = 30 * time.Second
	defaultErrorCooldown    = 10 * time.Second
)

// NativeSender delivers a notification through the operating system's
// notification facility.
type NativeSender interface {
	SendNative(n model.Notification) error
}

// OverlaySender delivers a notification to the in-context overlay shown
// alongside the protected application.
type OverlaySender interface {
	SendOverlay(n model.Notification) error
}

// Recorder persists a delivered notification for later reporting. It is
// optional; a nil recorder disables history.
type Recorder interface {
	RecordAlert(n model.Notification) error
}

// CategorySettings gates the channels a notification category may use.
// Both default to enabled.
type CategorySettings struct {
	Native  bool
	Overlay bool
}

// Hub throttles and fans out notifications to the configured channels.
// Delivery is fire and forget: a missing or failing sender yields a
// false channel flag in the Delivery, never an error.
type Hub struct {
	native   NativeSender
	overlay  OverlaySender
	recorder Recorder
	logger   *slog.Logger

	maxPerMinute     int
	activityCooldown time.Duration
	errorCooldown    time.Duration
	now              func() time.Time

	mu        sync.Mutex
	recent    []time.Time // delivery times inside the rolling window
	lastFired map[model.NotificationType]time.Time
	settings  map[model.NotificationType]CategorySettings
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithNativeSender sets the native notification channel.
func WithNativeSender(s NativeSender) HubOption {
	return func(h *Hub) { h.native = s }
}

// WithOverlaySender sets the overlay notification channel.
func WithOverlaySender(s OverlaySender) HubOption {
	return func(h *Hub) { h.overlay = s }
}

// WithRecorder sets the history recorder.
func WithRecorder(r Recorder) HubOption {
	return func(h *Hub) { h.recorder = r }
}

// WithMaxPerMinute overrides the shared per-minute budget.
func WithMaxPerMinute(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxPerMinute = n
		}
	}
}

// WithCooldowns overrides the activity and error cooldowns.
func WithCooldowns(activity, errorCooldown time.Duration) HubOption {
	return func(h *Hub) {
		h.activityCooldown = activity
		h.errorCooldown = errorCooldown
	}
}

// WithLogger sets the logger for delivery diagnostics.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithCategorySettings gates the channels for one notification type.
func WithCategorySettings(t model.NotificationType, s CategorySettings) HubOption {
	return func(h *Hub) { h.settings[t] = s }
}

// withClock overrides the time source for tests.
func withClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a notification hub with the given options.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		logger:           slog.Default(),
		maxPerMinute:     defaultMaxPerMinute,
		activityCooldown: defaultActivityCooldown,
		errorCooldown:    defaultErrorCooldown,
		now:              time.Now,
		lastFired:        make(map[model.NotificationType]time.Time),
		settings:         make(map[model.NotificationType]CategorySettings),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// cooldown returns the per-type cooldown for a notification type.
// Activity warnings and proxy errors are the chatty categories; threat
// verdicts and failover events are throttled only by the shared window.
func (h *Hub) cooldown(t model.NotificationType) time.Duration {
	switch t {
	case model.NotifySuspiciousRPC, model.NotifyRPCBlocked:
		return h.activityCooldown
	case model.NotifyProxyError:
		return h.errorCooldown
	default:
		return 0
	}
}

// Notify delivers a notification through the enabled channels, subject
// to throttling. A throttled notification is dropped silently apart from
// the Delivery result and a debug log line.
func (h *Hub) Notify(n model.Notification) model.Delivery {
	if n.Timestamp.IsZero() {
		n.Timestamp = h.now()
	}
	info := n.Type.Info()
	if n.Priority == 0 {
		n.Priority = info.Priority
	}
	if n.Title == "" {
		n.Title = TitleFor(n.Type)
	}

	if !h.admit(n.Type) {
		h.logger.Debug("notification throttled",
			"type", string(n.Type),
			"title", n.Title,
		)
		return model.Delivery{Throttled: true}
	}

	settings, ok := h.settings[n.Type]
	if !ok {
		settings = CategorySettings{Native: true, Overlay: true}
	}

	var d model.Delivery
	if info.Native && settings.Native && h.native != nil {
		if err := h.native.SendNative(n); err != nil {
			h.logger.Warn("native notification failed",
				"type", string(n.Type),
				"error", err,
			)
		} else {
			d.NativeSent = true
		}
	}
	if info.Overlay && settings.Overlay && h.overlay != nil {
		if err := h.overlay.SendOverlay(n); err != nil {
			h.logger.Warn("overlay notification failed",
				"type", string(n.Type),
				"error", err,
			)
		} else {
			d.OverlaySent = true
		}
	}

	if d.NativeSent || d.OverlaySent {
		h.recordFiring(n.Type, n.Timestamp)
		if h.recorder != nil {
			if err := h.recorder.RecordAlert(n); err != nil {
				h.logger.Warn("alert history write failed", "error", err)
			}
		}
	}
	return d
}

// admit checks the shared window and the per-type cooldown. It does not
// record a firing; only a successful channel delivery counts against the
// budget.
func (h *Hub) admit(t model.NotificationType) bool {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	// Evict entries older than the rolling window.
	cutoff := now.Add(-rateWindow)
	kept := h.recent[:0]
	for _, at := range h.recent {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	h.recent = kept

	if len(h.recent) >= h.maxPerMinute {
		return false
	}
	if cd := h.cooldown(t); cd > 0 {
		if last, ok := h.lastFired[t]; ok && now.Sub(last) < cd {
			return false
		}
	}
	return true
}

// recordFiring counts a successful delivery against the shared window
// and the type's cooldown clock.
func (h *Hub) recordFiring(t model.NotificationType, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = append(h.recent, at)
	h.lastFired[t] = at
}

var titleCaser = cases.Title(language.English)

// TitleFor derives a default headline from the notification type, e.g.
// RPC_BLOCKED becomes "RPC Blocked". Producers that want a better title
// set one on the notification.
func TitleFor(t model.NotificationType) string {
	words := strings.Fields(strings.ReplaceAll(strings.ToLower(string(t)), "_", " "))
	for i, w := range words {
		if w == "rpc" || w == "vpn" {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}
